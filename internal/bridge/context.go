package bridge

// ProcessFunc is the application routine invoked once per audio block on the
// server's real-time thread. It must not block, allocate or retain views.
type ProcessFunc func(ctx Context)

// InputBuffer is a read-only view of one input port's samples for the
// current block
type InputBuffer struct {
	samples []float32
}

// Len returns the number of samples, equal to the block size
func (b InputBuffer) Len() int {
	return len(b.samples)
}

// At returns sample i
func (b InputBuffer) At(i int) float32 {
	return b.samples[i]
}

// CopyTo copies the samples into dst and returns the number copied
func (b InputBuffer) CopyTo(dst []float32) int {
	return copy(dst, b.samples)
}

// Context bundles the buffer views of one block. It is passed by value and
// its views are valid only until the routine returns.
type Context struct {
	inputs  []InputBuffer
	outputs [][]float32
}

// In returns the view of input port i
func (c Context) In(i int) InputBuffer {
	return c.inputs[i]
}

// Out returns the mutable view of output port i. Samples written here are
// what the server emits for this block.
func (c Context) Out(i int) []float32 {
	return c.outputs[i]
}

// NumInputs returns the number of input views
func (c Context) NumInputs() int {
	return len(c.inputs)
}

// NumOutputs returns the number of output views
func (c Context) NumOutputs() int {
	return len(c.outputs)
}

// BlockSize returns the number of frames in this block. It is taken from the
// first output when outputs exist, otherwise from the first input.
func (c Context) BlockSize() int {
	if len(c.outputs) > 0 {
		return len(c.outputs[0])
	}
	if len(c.inputs) > 0 {
		return c.inputs[0].Len()
	}
	return 0
}
