// Package mock provides an in-memory [audio.Device] for unit tests.
//
// Tests drive the device callbacks directly: [Device.Emit] plays the role of
// the microphone and [Device.Pull] the role of the speaker asking for the
// next buffer.
//
//	dev := &mock.Device{}
//	go orch.Run(ctx)
//	_ = dev.WaitInput(ctx)
//	dev.Emit(frame)
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

var (
	_ audio.Device = (*Device)(nil)
	_ audio.Stream = (*Stream)(nil)
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [audio.Stream].
type Stream struct {
	glitches   atomic.Uint64
	closeCount atomic.Int32

	// CloseErr is returned by every Close call.
	CloseErr error
}

// Glitches implements [audio.Stream].
func (s *Stream) Glitches() uint64 { return s.glitches.Load() }

// AddGlitch simulates n callbacks with a non-zero device status.
func (s *Stream) AddGlitch(n uint64) { s.glitches.Add(n) }

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.closeCount.Add(1)
	return s.CloseErr
}

// Closed reports whether Close has been called at least once.
func (s *Stream) Closed() bool { return s.closeCount.Load() > 0 }

// CloseCount returns the number of Close calls.
func (s *Stream) CloseCount() int { return int(s.closeCount.Load()) }

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock [audio.Device]. The zero value is ready to use. Each
// direction can be opened once.
type Device struct {
	// InputErr and OutputErr are returned by OpenInput and OpenOutput.
	InputErr  error
	OutputErr error

	mu         sync.Mutex
	once       sync.Once
	inOpened   chan struct{}
	outOpened  chan struct{}
	input      *Stream
	output     *Stream
	inputCfg   audio.StreamConfig
	outputCfg  audio.StreamConfig
	inputCB    audio.InputCallback
	outputCB   audio.OutputCallback
	inputOpen  int
	outputOpen int
}

func (d *Device) init() {
	d.once.Do(func() {
		d.inOpened = make(chan struct{})
		d.outOpened = make(chan struct{})
	})
}

// OpenInput implements [audio.Device].
func (d *Device) OpenInput(cfg audio.StreamConfig, cb audio.InputCallback) (audio.Stream, error) {
	d.init()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputOpen++
	if d.InputErr != nil {
		return nil, d.InputErr
	}
	d.inputCfg, d.inputCB = cfg, cb
	d.input = &Stream{}
	close(d.inOpened)
	return d.input, nil
}

// OpenOutput implements [audio.Device].
func (d *Device) OpenOutput(cfg audio.StreamConfig, cb audio.OutputCallback) (audio.Stream, error) {
	d.init()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputOpen++
	if d.OutputErr != nil {
		return nil, d.OutputErr
	}
	d.outputCfg, d.outputCB = cfg, cb
	d.output = &Stream{}
	close(d.outOpened)
	return d.output, nil
}

// WaitInput blocks until an input stream is open or ctx is done.
func (d *Device) WaitInput(ctx context.Context) error {
	d.init()
	select {
	case <-d.inOpened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitOutput blocks until an output stream is open or ctx is done.
func (d *Device) WaitOutput(ctx context.Context) error {
	d.init()
	select {
	case <-d.outOpened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit delivers frame to the input callback as the device thread would. It
// returns false if no input stream is open or it has been closed.
func (d *Device) Emit(frame []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.input == nil || d.input.Closed() {
		return false
	}
	d.inputCB(frame)
	return true
}

// Pull asks the output callback to fill a buffer of n bytes and returns it.
// ok is false if no output stream is open or it has been closed.
func (d *Device) Pull(n int) (buf []byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.output == nil || d.output.Closed() {
		return nil, false
	}
	buf = make([]byte, n)
	d.outputCB(buf)
	return buf, true
}

// InputStream returns the open input stream, or nil.
func (d *Device) InputStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// OutputStream returns the open output stream, or nil.
func (d *Device) OutputStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

// InputConfig returns the config passed to OpenInput.
func (d *Device) InputConfig() audio.StreamConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputCfg
}

// OutputConfig returns the config passed to OpenOutput.
func (d *Device) OutputConfig() audio.StreamConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputCfg
}

// OpenCalls returns how many times each direction was opened, including
// failed attempts.
func (d *Device) OpenCalls() (input, output int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputOpen, d.outputOpen
}
