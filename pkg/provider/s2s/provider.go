// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An S2S provider wraps a real-time conversational model that accepts raw
// audio or text input and answers with synthesised audio, text and tool calls
// in a single stateful session. Gemini Live is the reference backend.
//
// The central abstraction is [Session]: a duplex connection that is written to
// from several goroutines (audio sender, text input, tool dispatcher) and read
// one turn at a time through [Session.Receive].
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
	"iter"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrSessionClosed is returned by Session methods after Close, and ends a
// Receive sequence when the connection is gone.
var ErrSessionClosed = errors.New("s2s: session closed")

// Modality selects what kind of output the model produces.
type Modality string

const (
	// ModalityAudio asks the model to answer with synthesised speech.
	ModalityAudio Modality = "AUDIO"

	// ModalityText asks the model to answer with text.
	ModalityText Modality = "TEXT"
)

// IsValid reports whether m is a known modality.
func (m Modality) IsValid() bool {
	switch m {
	case ModalityAudio, ModalityText:
		return true
	default:
		return false
	}
}

// ToolDeclaration describes a function the model may call during the session.
type ToolDeclaration struct {
	// Name is the exact identifier the model uses in tool calls.
	Name string

	// Description tells the model when to call the tool.
	Description string

	// Parameters is the JSON schema of the argument object.
	Parameters *jsonschema.Schema
}

// SessionConfig is the configuration for a new session. It cannot be changed
// once the session is open.
type SessionConfig struct {
	// Instructions is the system prompt.
	Instructions string

	// Voice is the provider-specific prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// Modality is the response modality. Empty means [ModalityAudio].
	Modality Modality

	// Tools is the set of functions offered to the model.
	Tools []ToolDeclaration

	// InputSampleRate is the sample rate of audio passed to SendAudio.
	// Zero means 16000.
	InputSampleRate int
}

// FunctionCall is a single tool invocation requested by the model.
type FunctionCall struct {
	// ID correlates the call with its response.
	ID string

	// Name is the tool name as declared in [SessionConfig.Tools].
	Name string

	// Args holds the decoded argument object. It may be nil.
	Args map[string]any
}

// FunctionResponse is the result of a [FunctionCall], keyed by the call's ID.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ── Events ─────────────────────────────────────────────────────────────────────

// Event is one item of a model turn. The concrete type is one of [AudioData],
// [Text] or [ToolCall]; consumers switch on it and must keep a default branch.
type Event interface {
	isEvent()
}

// AudioData carries a chunk of synthesised PCM (24 kHz, s16le, mono).
type AudioData struct {
	Data []byte
}

// Text carries a fragment of the model's text output.
type Text struct {
	Text string
}

// ToolCall carries a batch of function calls that must be answered with a
// single [Session.SendToolResponses] call.
type ToolCall struct {
	Calls []FunctionCall
}

func (AudioData) isEvent() {}
func (Text) isEvent()      {}
func (ToolCall) isEvent()  {}

// ── Session & Provider ─────────────────────────────────────────────────────────

// Session is an open duplex connection to a model. Callers must call Close
// when done; a closed session is never reused.
type Session interface {
	// SendAudio streams one PCM frame (s16le mono at the configured input rate).
	SendAudio(ctx context.Context, frame []byte) error

	// SendText sends a user text turn. endOfTurn asks the model to respond.
	SendText(ctx context.Context, text string, endOfTurn bool) error

	// SendToolResponses answers one tool-call batch. An empty slice is still
	// transmitted so the model can continue the turn.
	SendToolResponses(ctx context.Context, responses []FunctionResponse) error

	// Receive returns the events of the next model turn. The sequence ends
	// when the turn completes; calling Receive again yields the following turn.
	// If the connection fails or the session is closed, the sequence yields a
	// single non-nil error and stops.
	Receive(ctx context.Context) iter.Seq2[Event, error]

	// Close terminates the session. Calling Close more than once is safe.
	Close() error
}

// Provider opens sessions against a backend.
type Provider interface {
	// Connect dials the backend and completes the session handshake. The
	// returned Session is ready for input.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
