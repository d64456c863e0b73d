package audio

import "sync/atomic"

// PlaybackBuffer turns a stream of variably sized inbound chunks into the
// fixed-size buffers a speaker callback asks for.
//
// The buffer itself is owned by the playback callback: [PlaybackBuffer.Fill]
// must not be called concurrently. The counters may be read from any goroutine.
type PlaybackBuffer struct {
	in         *InboundQueue
	buf        []byte
	buffered   atomic.Int64
	underruns  atomic.Uint64
	onUnderrun func(padded int)
}

// NewPlaybackBuffer returns a buffer that pulls from in. onUnderrun, if
// non-nil, is called with the number of zero bytes written whenever a fill
// comes up short.
func NewPlaybackBuffer(in *InboundQueue, onUnderrun func(padded int)) *PlaybackBuffer {
	return &PlaybackBuffer{in: in, onUnderrun: onUnderrun}
}

// Fill writes exactly len(dst) bytes into dst. It pulls chunks from the
// inbound queue without blocking until enough bytes are buffered; on the first
// empty poll it stops pulling and pads the remainder with silence.
func (b *PlaybackBuffer) Fill(dst []byte) {
	n := len(dst)
	for len(b.buf) < n {
		chunk, ok := b.in.TryPop()
		if !ok {
			break
		}
		b.buf = append(b.buf, chunk...)
	}

	copied := copy(dst, b.buf)
	if copied < n {
		clear(dst[copied:])
		b.underruns.Add(1)
		if b.onUnderrun != nil {
			b.onUnderrun(n - copied)
		}
	}

	rest := copy(b.buf, b.buf[copied:])
	b.buf = b.buf[:rest]
	b.buffered.Store(int64(rest))
}

// Buffered returns the number of bytes held after the last fill.
func (b *PlaybackBuffer) Buffered() int { return int(b.buffered.Load()) }

// Underruns returns how many fills had to be padded with silence.
func (b *PlaybackBuffer) Underruns() uint64 { return b.underruns.Load() }
