// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to script model turns and inspect what the caller sent.
//
// Example:
//
//	sess := mock.NewSession()
//	sess.PushTurn(s2s.Text{Text: "hi"})
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

var _ s2s.Provider = (*Provider)(nil)
var _ s2s.Session = (*Session)(nil)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh
	// [NewSession].
	Session *Session

	// ConnectErrs are returned by successive Connect calls, one per call.
	// Once exhausted, Connect succeeds.
	ConnectErrs []error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session or the next ConnectErrs entry.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if len(p.ConnectErrs) > 0 {
		err := p.ConnectErrs[0]
		p.ConnectErrs = p.ConnectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// ── Session ────────────────────────────────────────────────────────────────────

// TextCall records a single SendText invocation.
type TextCall struct {
	Text      string
	EndOfTurn bool
}

type turn struct {
	events []s2s.Event
	err    error
}

// Session is a scriptable mock implementation of s2s.Session. Create it with
// [NewSession].
type Session struct {
	turns    chan turn
	closedCh chan struct{}

	mu sync.Mutex

	// SendAudioErr, SendTextErr and SendToolResponsesErr are returned by the
	// corresponding methods when non-nil.
	SendAudioErr         error
	SendTextErr          error
	SendToolResponsesErr error

	audio         [][]byte
	texts         []TextCall
	toolResponses [][]s2s.FunctionResponse
	closeCount    int
	closed        bool
}

// NewSession returns a session that can buffer up to 64 scripted turns.
func NewSession() *Session {
	return &Session{
		turns:    make(chan turn, 64),
		closedCh: make(chan struct{}),
	}
}

// PushTurn scripts the next model turn. Receive yields events in order and
// then ends the turn.
func (s *Session) PushTurn(events ...s2s.Event) {
	s.turns <- turn{events: events}
}

// Fail makes the next Receive yield err, simulating a dropped connection.
func (s *Session) Fail(err error) {
	s.turns <- turn{err: err}
}

// SendAudio records the frame.
func (s *Session) SendAudio(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.audio = append(s.audio, frame)
	return nil
}

// SendText records the text.
func (s *Session) SendText(_ context.Context, text string, endOfTurn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendTextErr != nil {
		return s.SendTextErr
	}
	s.texts = append(s.texts, TextCall{Text: text, EndOfTurn: endOfTurn})
	return nil
}

// SendToolResponses records the batch.
func (s *Session) SendToolResponses(_ context.Context, responses []s2s.FunctionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendToolResponsesErr != nil {
		return s.SendToolResponsesErr
	}
	batch := make([]s2s.FunctionResponse, len(responses))
	copy(batch, responses)
	s.toolResponses = append(s.toolResponses, batch)
	return nil
}

// Receive yields the next scripted turn, blocking until one is pushed, the
// session is closed or ctx is done.
func (s *Session) Receive(ctx context.Context) iter.Seq2[s2s.Event, error] {
	return func(yield func(s2s.Event, error) bool) {
		select {
		case <-ctx.Done():
			yield(nil, ctx.Err())
		case <-s.closedCh:
			yield(nil, s2s.ErrSessionClosed)
		case t := <-s.turns:
			if t.err != nil {
				yield(nil, t.err)
				return
			}
			for _, ev := range t.events {
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// Close marks the session closed and unblocks Receive. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if !s.closed {
		s.closed = true
		close(s.closedCh)
	}
	return nil
}

// AudioFrames returns a copy of every frame passed to SendAudio.
func (s *Session) AudioFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Texts returns a copy of every SendText call.
func (s *Session) Texts() []TextCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TextCall, len(s.texts))
	copy(out, s.texts)
	return out
}

// ToolResponses returns a copy of every batch passed to SendToolResponses.
func (s *Session) ToolResponses() [][]s2s.FunctionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]s2s.FunctionResponse, len(s.toolResponses))
	copy(out, s.toolResponses)
	return out
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
