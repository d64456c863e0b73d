// Package audio defines the audio device abstraction and the buffering
// primitives that sit between a real-time audio thread and the network.
//
// The pipeline is built from three pieces:
//
//   - [OutboundQueue]: a bounded FIFO fed by the microphone callback. The
//     producer never blocks; when the queue is full the newest frame is dropped.
//   - [InboundQueue]: an unbounded FIFO fed by the network receiver and drained
//     non-blockingly by the playback path.
//   - [PlaybackBuffer]: a byte accumulator that serves fixed-size output frames
//     to the speaker callback, zero-filling any shortfall.
//
// Device implementations live in sub-packages (audio/portaudio, audio/mock).
// Only [OutboundQueue.TryPush] and [PlaybackBuffer.Fill] may be called from a
// device callback; everything else belongs to ordinary goroutines.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Default stream parameters. Microphone audio is captured at 16 kHz and model
// speech is played back at 24 kHz, both as mono int16 PCM.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultChannels         = 1
	DefaultFramesPerBuffer  = 1024
)

// SampleFormat identifies the PCM sample encoding of a stream.
type SampleFormat int

const (
	// FormatInt16 is signed 16-bit little-endian PCM.
	FormatInt16 SampleFormat = iota + 1
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "int16"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// BytesPerSample returns the encoded size of a single sample, or 0 for an
// unknown format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatInt16:
		return 2
	default:
		return 0
	}
}

// Frame is a chunk of raw PCM audio together with the format it was captured in.
// Frames are immutable once captured; ownership passes from producer to consumer.
type Frame struct {
	// Data holds little-endian int16 PCM samples.
	Data []byte

	// SampleRate in Hz (16000 for microphone input, 24000 for model speech).
	SampleRate int

	// Channels is always 1 in this pipeline.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// StreamConfig describes one direction of a device stream.
type StreamConfig struct {
	SampleRate      int
	Channels        int
	Format          SampleFormat
	FramesPerBuffer int
}

// InputConfig returns the default microphone stream configuration.
func InputConfig() StreamConfig {
	return StreamConfig{
		SampleRate:      DefaultInputSampleRate,
		Channels:        DefaultChannels,
		Format:          FormatInt16,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}
}

// OutputConfig returns the default playback stream configuration.
func OutputConfig() StreamConfig {
	return StreamConfig{
		SampleRate:      DefaultOutputSampleRate,
		Channels:        DefaultChannels,
		Format:          FormatInt16,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}
}

// Validate reports every problem with the configuration.
func (c StreamConfig) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio: only mono streams are supported, got %d channels", c.Channels))
	}
	if c.Format != FormatInt16 {
		errs = append(errs, fmt.Errorf("audio: unsupported sample format %s", c.Format))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio: frames per buffer must be positive, got %d", c.FramesPerBuffer))
	}
	return errors.Join(errs...)
}

// FrameBytes returns the size in bytes of one callback buffer.
func (c StreamConfig) FrameBytes() int {
	return c.FramesPerBuffer * c.Channels * c.Format.BytesPerSample()
}

// FrameDuration returns the wall-clock length of one callback buffer.
func (c StreamConfig) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FramesPerBuffer) * time.Second / time.Duration(c.SampleRate)
}
