// Package portaudio implements [audio.Device] on top of the PortAudio C
// library via github.com/gordonklaus/portaudio.
//
// PortAudio is initialised when the first stream opens and terminated when
// the last one closes, so callers never touch the global library state.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

var (
	refMu        sync.Mutex
	refs         int
	paInitialize = pa.Initialize
	paTerminate  = pa.Terminate
)

func acquire() error {
	refMu.Lock()
	defer refMu.Unlock()
	if refs == 0 {
		if err := paInitialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	refs++
	return nil
}

func release() error {
	refMu.Lock()
	defer refMu.Unlock()
	if refs == 0 {
		return nil
	}
	refs--
	if refs == 0 {
		if err := paTerminate(); err != nil {
			return fmt.Errorf("portaudio: terminate: %w", err)
		}
	}
	return nil
}

// Options selects the devices to use. Empty names pick the host defaults.
// Names match case-insensitively on a substring of the device name.
type Options struct {
	InputDevice  string
	OutputDevice string
	Logger       *slog.Logger
}

// Device opens PortAudio streams.
type Device struct {
	opts Options
	log  *slog.Logger
}

// New returns a Device. No PortAudio call is made until a stream opens.
func New(opts Options) *Device {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Device{opts: opts, log: log}
}

// OpenInput implements [audio.Device]. Each callback hands cb a freshly
// allocated little-endian copy of the captured samples.
func (d *Device) OpenInput(cfg audio.StreamConfig, cb audio.InputCallback) (audio.Stream, error) {
	s := &stream{direction: "input"}
	callback := func(in []int16, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
		if flags&(pa.InputOverflow|pa.InputUnderflow) != 0 {
			s.glitches.Add(1)
		}
		cb(audio.Int16ToBytes(in))
	}
	if err := d.open(s, cfg, true, callback); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenOutput implements [audio.Device]. cb fills a byte buffer that is reused
// across callbacks and decoded into the device buffer.
func (d *Device) OpenOutput(cfg audio.StreamConfig, cb audio.OutputCallback) (audio.Stream, error) {
	s := &stream{direction: "output"}
	var scratch []byte
	callback := func(out []int16, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
		if flags&(pa.OutputUnderflow|pa.OutputOverflow) != 0 {
			s.glitches.Add(1)
		}
		if cap(scratch) < len(out)*2 {
			scratch = make([]byte, len(out)*2)
		}
		buf := scratch[:len(out)*2]
		cb(buf)
		audio.DecodeInt16(out, buf)
	}
	if err := d.open(s, cfg, false, callback); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) open(s *stream, cfg audio.StreamConfig, input bool, callback any) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("portaudio: open %s: %w", s.direction, err)
	}
	if err := acquire(); err != nil {
		return err
	}

	params, name, err := d.params(cfg, input)
	if err == nil {
		s.pa, err = pa.OpenStream(params, callback)
	}
	if err != nil {
		release()
		return fmt.Errorf("portaudio: open %s stream: %w", s.direction, err)
	}
	if err := s.pa.Start(); err != nil {
		s.pa.Close()
		release()
		return fmt.Errorf("portaudio: start %s stream: %w", s.direction, err)
	}

	d.log.Info("audio stream opened",
		"direction", s.direction,
		"device", name,
		"sample_rate", cfg.SampleRate,
		"frames_per_buffer", cfg.FramesPerBuffer,
	)
	return nil
}

func (d *Device) params(cfg audio.StreamConfig, input bool) (pa.StreamParameters, string, error) {
	want := d.opts.OutputDevice
	if input {
		want = d.opts.InputDevice
	}

	var (
		dev *pa.DeviceInfo
		err error
	)
	if want == "" {
		if input {
			dev, err = pa.DefaultInputDevice()
		} else {
			dev, err = pa.DefaultOutputDevice()
		}
	} else {
		var devs []*pa.DeviceInfo
		if devs, err = pa.Devices(); err == nil {
			dev, err = findDevice(devs, want, input)
		}
	}
	if err != nil {
		return pa.StreamParameters{}, "", err
	}

	var p pa.StreamParameters
	if input {
		p = pa.LowLatencyParameters(dev, nil)
		p.Input.Channels = cfg.Channels
	} else {
		p = pa.LowLatencyParameters(nil, dev)
		p.Output.Channels = cfg.Channels
	}
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = cfg.FramesPerBuffer
	return p, dev.Name, nil
}

// findDevice returns the first device whose name contains want and that has
// channels in the requested direction.
func findDevice(devs []*pa.DeviceInfo, want string, input bool) (*pa.DeviceInfo, error) {
	want = strings.ToLower(want)
	for _, dev := range devs {
		if dev == nil || !strings.Contains(strings.ToLower(dev.Name), want) {
			continue
		}
		if input && dev.MaxInputChannels > 0 || !input && dev.MaxOutputChannels > 0 {
			return dev, nil
		}
	}
	dir := "output"
	if input {
		dir = "input"
	}
	return nil, fmt.Errorf("no %s device matching %q", dir, want)
}

// ─── Stream ───────────────────────────────────────────────────────────────────

type stream struct {
	direction string
	pa        *pa.Stream
	glitches  atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Glitches() uint64 { return s.glitches.Load() }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.pa.Stop(), s.pa.Close(), release())
		if s.closeErr != nil {
			s.closeErr = fmt.Errorf("portaudio: close %s stream: %w", s.direction, s.closeErr)
		}
	})
	return s.closeErr
}

// ─── Device listing ───────────────────────────────────────────────────────────

// Info describes one audio device.
type Info struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	DefaultInput      bool
	DefaultOutput     bool
}

// Devices lists the audio devices PortAudio can see.
func Devices() ([]Info, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()

	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	defIn, _ := pa.DefaultInputDevice()
	defOut, _ := pa.DefaultOutputDevice()

	out := make([]Info, 0, len(devs))
	for _, dev := range devs {
		info := Info{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			DefaultInput:      defIn != nil && dev.Name == defIn.Name && dev.MaxInputChannels > 0,
			DefaultOutput:     defOut != nil && dev.Name == defOut.Name && dev.MaxOutputChannels > 0,
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}
