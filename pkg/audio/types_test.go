package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestStreamConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     audio.StreamConfig
		wantErr bool
	}{
		{name: "default input", cfg: audio.InputConfig()},
		{name: "default output", cfg: audio.OutputConfig()},
		{name: "zero rate", cfg: audio.StreamConfig{Channels: 1, Format: audio.FormatInt16, FramesPerBuffer: 1024}, wantErr: true},
		{name: "stereo", cfg: audio.StreamConfig{SampleRate: 16000, Channels: 2, Format: audio.FormatInt16, FramesPerBuffer: 1024}, wantErr: true},
		{name: "unknown format", cfg: audio.StreamConfig{SampleRate: 16000, Channels: 1, FramesPerBuffer: 1024}, wantErr: true},
		{name: "no frames", cfg: audio.StreamConfig{SampleRate: 16000, Channels: 1, Format: audio.FormatInt16}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamConfig_Sizes(t *testing.T) {
	t.Parallel()

	in := audio.InputConfig()
	if got := in.FrameBytes(); got != 2048 {
		t.Errorf("input FrameBytes() = %d, want 2048", got)
	}
	if got := in.FrameDuration(); got != 64*time.Millisecond {
		t.Errorf("input FrameDuration() = %v, want 64ms", got)
	}

	out := audio.OutputConfig()
	if out.SampleRate != 24000 {
		t.Errorf("output SampleRate = %d, want 24000", out.SampleRate)
	}
}

func TestFrame_Duration(t *testing.T) {
	t.Parallel()

	f := audio.Frame{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 100*time.Millisecond {
		t.Errorf("Duration() = %v, want 100ms", got)
	}
	if got := (audio.Frame{Data: []byte{1, 2}}).Duration(); got != 0 {
		t.Errorf("Duration() with no rate = %v, want 0", got)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	b := audio.Int16ToBytes(samples)
	want := samplesToBytes(samples)
	if string(b) != string(want) {
		t.Fatalf("Int16ToBytes = %v, want %v", b, want)
	}

	got := make([]int16, len(samples))
	if n := audio.DecodeInt16(got, b); n != len(samples) {
		t.Fatalf("DecodeInt16 wrote %d samples, want %d", n, len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestDecodeInt16_ShortSource(t *testing.T) {
	t.Parallel()

	dst := []int16{9, 9, 9}
	n := audio.DecodeInt16(dst, []byte{1, 0, 7})
	if n != 1 || dst[0] != 1 || dst[1] != 9 {
		t.Errorf("DecodeInt16 = %d, dst = %v", n, dst)
	}
}
