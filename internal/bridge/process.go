package bridge

import "time"

// process is the notification entry point installed with the server. It runs
// on the real-time thread: no locks, no allocation, no logging.
func (c *Client) process(nframes uint32) {
	var start time.Time
	if c.observer != nil {
		start = time.Now()
	}

	n := int(nframes)
	for i := range c.inputs {
		c.inViews[i] = InputBuffer{samples: c.inputs[i].handle.Buffer(nframes)[:n:n]}
	}
	for i := range c.outputs {
		c.outViews[i] = c.outputs[i].handle.Buffer(nframes)[:n:n]
	}

	c.fn(Context{inputs: c.inViews, outputs: c.outViews})
	c.blocks.Add(1)

	if c.observer != nil {
		c.observer.BlockProcessed(nframes, time.Since(start))
	}
}
