package audio

// Int16ToBytes encodes samples as little-endian PCM into a new slice.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodeInt16 decodes little-endian PCM from src into dst and returns the
// number of samples written. A trailing odd byte is ignored.
func DecodeInt16(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		dst[i] = int16(src[i*2]) | int16(src[i*2+1])<<8
	}
	return n
}
