// Package orchestrator runs one voice or text conversation with the model.
//
// A voice run ([Orchestrator.Run]) owns the outbound and inbound audio queues
// and the playback buffer and drives five concurrent tasks in an errgroup:
//
//   - text input: reads console lines and sends them as user turns
//   - outbound send: pops microphone frames and streams them to the session
//   - mic capture: holds the input device stream open
//   - receive: reads model turns, feeds audio to the inbound queue, prints
//     text and dispatches tool calls
//   - playback: holds the output device stream open
//
// The first task to finish, for any reason, cancels the rest. Device
// callbacks only touch [audio.OutboundQueue.TryPush] and
// [audio.PlaybackBuffer.Fill], so nothing on the real-time thread blocks.
//
// A text run ([Orchestrator.Chat]) is a sequential prompt → reply loop with no
// audio.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/dispatch"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

const (
	defaultOutboundCapacity = 5
	defaultPollInterval     = 100 * time.Millisecond
)

// ErrAlreadyRun is returned when Run or Chat is called on an orchestrator that
// has already left [StateIdle]. Sessions are never reused.
var ErrAlreadyRun = errors.New("orchestrator: already run")

// Dialer opens the model session. [session.Dialer] satisfies it.
type Dialer interface {
	Dial(ctx context.Context, cfg s2s.SessionConfig) (s2s.Session, error)
}

// Config wires an [Orchestrator].
type Config struct {
	// Dialer opens the session. Required.
	Dialer Dialer

	// Session is passed to Dialer.Dial. Tools should match Dispatcher's
	// registry.
	Session s2s.SessionConfig

	// Dispatcher resolves tool calls. Required.
	Dispatcher *dispatch.Dispatcher

	// Device provides the microphone and speaker. Required by Run only.
	Device audio.Device

	// InputStream and OutputStream configure the device streams. Zero values
	// select [audio.InputConfig] and [audio.OutputConfig].
	InputStream  audio.StreamConfig
	OutputStream audio.StreamConfig

	// OutboundCapacity bounds the microphone queue. Default 5.
	OutboundCapacity int

	// PollInterval is how often the device tasks wake to check for
	// cancellation and collect glitch counts. Default 100ms.
	PollInterval time.Duration

	// Input and Output are the console. Defaults: os.Stdin and os.Stdout.
	Input  io.Reader
	Output io.Writer

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator runs a single conversation. It is not reusable: once Run or
// Chat returns it stays in [StateClosed].
type Orchestrator struct {
	cfg     Config
	runID   string
	log     *slog.Logger
	metrics *observe.Metrics
	out     console

	state atomic.Int32

	outbound *audio.OutboundQueue
	inbound  *audio.InboundQueue
	playback *audio.PlaybackBuffer
}

// New validates cfg and returns an idle orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Dialer == nil {
		errs = append(errs, errors.New("orchestrator: dialer is required"))
	}
	if cfg.Dispatcher == nil {
		errs = append(errs, errors.New("orchestrator: dispatcher is required"))
	}
	if cfg.InputStream == (audio.StreamConfig{}) {
		cfg.InputStream = audio.InputConfig()
	}
	if cfg.OutputStream == (audio.StreamConfig{}) {
		cfg.OutputStream = audio.OutputConfig()
	}
	if err := cfg.InputStream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: input stream: %w", err))
	}
	if err := cfg.OutputStream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: output stream: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.OutboundCapacity <= 0 {
		cfg.OutboundCapacity = defaultOutboundCapacity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Session.InputSampleRate == 0 {
		cfg.Session.InputSampleRate = cfg.InputStream.SampleRate
	}

	runID := uuid.NewString()
	o := &Orchestrator{
		cfg:     cfg,
		runID:   runID,
		log:     cfg.Logger.With("run_id", runID),
		metrics: cfg.Metrics,
		out:     console{w: cfg.Output},
	}
	return o, nil
}

// RunID returns the identifier attached to every log line of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	from := State(o.state.Swap(int32(s)))
	o.log.Debug("orchestrator state changed", "from", from.String(), "to", s.String())
}

// connect moves Idle → Connecting and dials the session. On failure the
// orchestrator is Closed.
func (o *Orchestrator) connect(ctx context.Context, modality s2s.Modality) (s2s.Session, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return nil, ErrAlreadyRun
	}
	o.log.Debug("orchestrator state changed", "from", StateIdle.String(), "to", StateConnecting.String())

	cfg := o.cfg.Session
	cfg.Modality = modality
	sess, err := o.cfg.Dialer.Dial(ctx, cfg)
	if err != nil {
		o.setState(StateClosed)
		return nil, fmt.Errorf("orchestrator: connect: %w", err)
	}
	o.metrics.ActiveSessions.Add(ctx, 1)
	o.log.Info("session connected", "modality", string(modality))
	return sess, nil
}

// close ends the session and moves to Closed.
func (o *Orchestrator) close(sess s2s.Session) {
	if err := sess.Close(); err != nil {
		o.log.Warn("closing session", "err", err)
	}
	o.metrics.ActiveSessions.Add(context.Background(), -1)
	o.setState(StateClosed)
	o.log.Info("session closed")
}

// Run connects an audio session and streams until a quit sentinel is typed,
// input reaches EOF, ctx is cancelled or a task fails. A clean stop returns
// nil; a connect failure, a device failure, a session failure or a task panic
// is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.Device == nil {
		return errors.New("orchestrator: audio device is required")
	}
	sess, err := o.connect(ctx, s2s.ModalityAudio)
	if err != nil {
		return err
	}
	defer o.close(sess)

	o.outbound = audio.NewOutboundQueue(o.cfg.OutboundCapacity, func() {
		o.metrics.FramesDropped.Add(context.Background(), 1)
	})
	o.inbound = &audio.InboundQueue{}
	o.playback = audio.NewPlaybackBuffer(o.inbound, func(int) {
		o.metrics.PlaybackUnderruns.Add(context.Background(), 1)
	})

	input := newLineReader(o.cfg.Input)
	defer input.stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	o.setState(StateRunning)
	o.out.note("Type a message and press enter, or q to quit.")

	o.spawn(g, gctx, cancel, "text-input", func(ctx context.Context) error {
		return o.textInput(ctx, sess, input)
	})
	o.spawn(g, gctx, cancel, "outbound-send", func(ctx context.Context) error {
		return o.sendAudio(ctx, sess)
	})
	o.spawn(g, gctx, cancel, "mic-capture", o.captureMic)
	o.spawn(g, gctx, cancel, "receive", func(ctx context.Context) error {
		return o.receive(ctx, sess)
	})
	o.spawn(g, gctx, cancel, "playback", o.play)

	err = g.Wait()
	o.log.Info("run finished",
		"frames_dropped", o.outbound.Dropped(),
		"playback_underruns", o.playback.Underruns(),
	)
	return err
}

// spawn runs fn as a group task. Whatever the outcome, the task's return
// cancels every other task. Errors observed after cancellation are secondary
// and are logged rather than returned.
func (o *Orchestrator) spawn(g *errgroup.Group, ctx context.Context, cancel context.CancelFunc, name string, fn func(context.Context) error) {
	g.Go(func() error {
		log := o.log.With("task", name)
		err := o.guard(ctx, log, name, fn)
		if err != nil && ctx.Err() != nil {
			log.Debug("task ended during shutdown", "err", err)
			err = nil
		} else if err != nil {
			log.Error("task failed", "err", err)
		} else {
			log.Debug("task finished")
		}
		if o.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
			log.Info("draining", "trigger", name)
		}
		cancel()
		return err
	})
}

// guard converts a panic in fn into an error.
func (o *Orchestrator) guard(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("orchestrator: %s task panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

// ─── Tasks ────────────────────────────────────────────────────────────────────

func (o *Orchestrator) textInput(ctx context.Context, sess s2s.Session, input *lineReader) error {
	for {
		o.out.prompt("message >")
		line, err := input.next(ctx)
		if errors.Is(err, io.EOF) {
			o.log.Info("input closed")
			return nil
		}
		if err != nil {
			return err
		}
		if IsQuit(line) {
			o.log.Info("quit requested")
			return nil
		}
		if line == "" {
			line = emptyLine
		}
		if err := sess.SendText(ctx, line, true); err != nil {
			return fmt.Errorf("orchestrator: send text: %w", err)
		}
	}
}

func (o *Orchestrator) sendAudio(ctx context.Context, sess s2s.Session) error {
	for {
		frame, err := o.outbound.Pop(ctx)
		if err != nil {
			return err
		}
		if err := sess.SendAudio(ctx, frame); err != nil {
			return fmt.Errorf("orchestrator: send audio: %w", err)
		}
		o.metrics.FramesSent.Add(ctx, 1)
	}
}

func (o *Orchestrator) captureMic(ctx context.Context) error {
	stream, err := o.cfg.Device.OpenInput(o.cfg.InputStream, func(frame []byte) {
		o.outbound.TryPush(frame)
	})
	if err != nil {
		return fmt.Errorf("orchestrator: open input: %w", err)
	}
	defer closeStream(o.log, "input", stream)
	return o.idle(ctx, "input", stream)
}

func (o *Orchestrator) play(ctx context.Context) error {
	stream, err := o.cfg.Device.OpenOutput(o.cfg.OutputStream, o.playback.Fill)
	if err != nil {
		return fmt.Errorf("orchestrator: open output: %w", err)
	}
	defer closeStream(o.log, "output", stream)
	return o.idle(ctx, "output", stream)
}

// idle keeps a device stream open until ctx is done, recording new glitches
// on every poll.
func (o *Orchestrator) idle(ctx context.Context, direction string, stream audio.Stream) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	var seen uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := stream.Glitches(); n > seen {
				o.metrics.RecordGlitches(ctx, direction, n-seen)
				o.log.Debug("audio device glitch", "direction", direction, "new", n-seen, "total", n)
				seen = n
			}
		}
	}
}

func closeStream(log *slog.Logger, direction string, s audio.Stream) {
	if err := s.Close(); err != nil {
		log.Warn("closing audio stream", "direction", direction, "err", err)
	}
}

func (o *Orchestrator) receive(ctx context.Context, sess s2s.Session) error {
	for ctx.Err() == nil {
		if err := o.turn(ctx, sess, func(data []byte) { o.inbound.Push(data) }); err != nil {
			return err
		}
	}
	return nil
}

// turn consumes one model turn. Audio goes to onAudio, text is printed, and
// tool calls are answered before the next event is read.
func (o *Orchestrator) turn(ctx context.Context, sess s2s.Session, onAudio func([]byte)) error {
	for ev, err := range sess.Receive(ctx) {
		if err != nil {
			return fmt.Errorf("orchestrator: receive: %w", err)
		}
		switch ev := ev.(type) {
		case s2s.AudioData:
			if onAudio != nil {
				onAudio(ev.Data)
			}
		case s2s.Text:
			o.out.model(ev.Text)
		case s2s.ToolCall:
			o.log.Debug("tool calls received", "count", len(ev.Calls))
			if err := o.cfg.Dispatcher.Dispatch(ctx, sess, ev.Calls); err != nil {
				return fmt.Errorf("orchestrator: %w", err)
			}
		default:
			o.log.Warn("ignoring unknown session event", "type", fmt.Sprintf("%T", ev))
		}
	}
	o.metrics.Turns.Add(ctx, 1)
	return nil
}
