package routines

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/portbridge/internal/bridge"
)

// PeakMonitor wraps a routine and tracks the peak absolute sample value per
// port. Process runs on the real-time thread; Snapshot is for a control
// goroutine. Peaks are kept as float32 bits in atomics.
type PeakMonitor struct {
	inner   bridge.ProcessFunc
	layout  bridge.Layout
	inPeak  []atomic.Uint32
	outPeak []atomic.Uint32
}

// PortPeak is one port's peak since the previous Snapshot
type PortPeak struct {
	Port string
	Peak float32
}

// NewPeakMonitor creates a monitor for layout wrapping inner
func NewPeakMonitor(layout bridge.Layout, inner bridge.ProcessFunc) *PeakMonitor {
	return &PeakMonitor{
		inner:   inner,
		layout:  layout,
		inPeak:  make([]atomic.Uint32, max(layout.Inputs, 0)),
		outPeak: make([]atomic.Uint32, max(layout.Outputs, 0)),
	}
}

// Process is the bridge.ProcessFunc. Inputs are measured before the inner
// routine runs and outputs after it.
func (m *PeakMonitor) Process(ctx bridge.Context) {
	for i := range min(ctx.NumInputs(), len(m.inPeak)) {
		in := ctx.In(i)
		var peak float32
		for j := range in.Len() {
			peak = max(peak, abs32(in.At(j)))
		}
		raise(&m.inPeak[i], peak)
	}

	m.inner(ctx)

	for i := range min(ctx.NumOutputs(), len(m.outPeak)) {
		var peak float32
		for _, v := range ctx.Out(i) {
			peak = max(peak, abs32(v))
		}
		raise(&m.outPeak[i], peak)
	}
}

// Snapshot returns the peaks of all ports, inputs first, and resets them
func (m *PeakMonitor) Snapshot() []PortPeak {
	peaks := make([]PortPeak, 0, len(m.inPeak)+len(m.outPeak))
	for i := range m.inPeak {
		peaks = append(peaks, PortPeak{
			Port: bridge.PortName(bridge.Input, i),
			Peak: math.Float32frombits(m.inPeak[i].Swap(0)),
		})
	}
	for i := range m.outPeak {
		peaks = append(peaks, PortPeak{
			Port: bridge.PortName(bridge.Output, i),
			Peak: math.Float32frombits(m.outPeak[i].Swap(0)),
		})
	}
	return peaks
}

// raise stores peak if it is larger than the current value. Non-negative
// float32 bit patterns order the same as their values.
func raise(slot *atomic.Uint32, peak float32) {
	bits := math.Float32bits(peak)
	for {
		cur := slot.Load()
		if bits <= cur || slot.CompareAndSwap(cur, bits) {
			return
		}
	}
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}
