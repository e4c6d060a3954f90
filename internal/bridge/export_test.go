package bridge

// InputSamples exposes the slice behind an InputBuffer so tests can check aliasing
func InputSamples(b InputBuffer) []float32 {
	return b.samples
}
