package audio

// InputCallback receives one captured frame per device callback. The slice is
// freshly allocated for each call and owned by the callee.
//
// Callbacks run on the device's real-time thread and must never block.
type InputCallback func(frame []byte)

// OutputCallback must fill out completely before returning. It runs on the
// device's real-time thread and must never block.
type OutputCallback func(out []byte)

// Stream is a running device stream. Streams start as soon as they are opened.
type Stream interface {
	// Glitches returns the number of callbacks for which the device reported a
	// non-zero status (input overflow, output underflow and similar).
	Glitches() uint64

	// Close stops the stream and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Device opens input and output streams on an audio backend.
//
// A failure to open one direction does not affect the other.
type Device interface {
	// OpenInput starts capturing with cfg and invokes cb once per frame.
	OpenInput(cfg StreamConfig, cb InputCallback) (Stream, error)

	// OpenOutput starts playback with cfg and invokes cb whenever the device
	// needs another buffer.
	OpenOutput(cfg StreamConfig, cb OutputCallback) (Stream, error)
}
