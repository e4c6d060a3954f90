package bridge

import (
	"fmt"
	"strconv"
)

// Direction is the signal direction of a port as seen by the client
type Direction uint8

const (
	// Input ports receive audio from the server graph
	Input Direction = iota
	// Output ports send audio to the server graph
	Output
)

// String returns "input" or "output"
func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

func (d Direction) prefix() string {
	if d == Input {
		return "in"
	}
	return "out"
}

// PortName returns the short port name for a direction and zero-based index, e.g. in_0 or out_3
func PortName(d Direction, index int) string {
	return d.prefix() + "_" + strconv.Itoa(index)
}

// Layout is the fixed port topology of a client
type Layout struct {
	Inputs  int
	Outputs int
}

// Validate checks that counts are non-negative and at least one port exists
func (l Layout) Validate() error {
	if l.Inputs < 0 || l.Outputs < 0 {
		return newError(ErrInvalidLayout, fmt.Errorf("negative port count %d/%d", l.Inputs, l.Outputs), categoryValidation).
			Context("inputs", l.Inputs).
			Context("outputs", l.Outputs).
			Build()
	}
	if l.Inputs+l.Outputs == 0 {
		return newError(ErrInvalidLayout, errNoPorts, categoryValidation).
			Context("inputs", l.Inputs).
			Context("outputs", l.Outputs).
			Build()
	}
	return nil
}

// Total returns the number of ports in the layout
func (l Layout) Total() int {
	return l.Inputs + l.Outputs
}

// String formats the layout as inputs x outputs, e.g. "2x2"
func (l Layout) String() string {
	return strconv.Itoa(l.Inputs) + "x" + strconv.Itoa(l.Outputs)
}

// Port is one registered endpoint. Ports are owned by their Client.
type Port struct {
	Direction Direction
	Index     int
	Name      string

	handle PortHandle
}

// Handle returns the server-side handle
func (p Port) Handle() PortHandle {
	return p.handle
}

// registerPorts registers inputs then outputs and stops at the first failure.
// The returned slices are never resized.
func registerPorts(conn Conn, layout Layout, report func(Port, error)) (inputs, outputs []Port, err error) {
	inputs = make([]Port, 0, layout.Inputs)
	outputs = make([]Port, 0, layout.Outputs)

	register := func(dir Direction, index int) (Port, error) {
		p := Port{Direction: dir, Index: index, Name: PortName(dir, index)}
		h, err := conn.RegisterPort(p.Name, dir)
		if err == nil && h == nil {
			err = errNoHandle
		}
		p.handle = h
		report(p, err)
		if err != nil {
			return p, newError(ErrPortRegistration, fmt.Errorf("%s: %w", p.Name, err), categoryPortRegistration).
				Context("port", p.Name).
				Context("direction", dir.String()).
				Build()
		}
		return p, nil
	}

	for i := range layout.Inputs {
		p, err := register(Input, i)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, p)
	}
	for i := range layout.Outputs {
		p, err := register(Output, i)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, p)
	}

	return inputs, outputs, nil
}
