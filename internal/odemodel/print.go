package odemodel

import (
	"fmt"
	"io"
)

// WriteEquations prints the system in the form
//
//	dX/dt = -(k * X) / cell
func (m *Model) WriteEquations(w io.Writer) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	for i, r := range m.Rates {
		printf("d%s/dt = %s\n", m.names[i], r)
	}
	for i, a := range m.Assignments {
		printf("%s = %s\n", m.names[m.NEq+i], a)
	}
	for _, a := range m.Algebraic {
		printf("0 = %s\n", a)
	}
	for _, ev := range m.Events {
		printf("event %s: when %s", ev.ID, ev.Trigger)
		if ev.Delay != nil {
			printf(" after %s", ev.Delay)
		}
		for _, a := range ev.Assignments {
			printf("; %s = %s", m.names[a.Index], a.Math)
		}
		printf("\n")
	}
	return err
}

// WriteJacobian prints every non-zero Jacobian entry.
func (m *Model) WriteJacobian(w io.Writer) error {
	if m.Jacobian == nil {
		_, err := fmt.Fprintln(w, "jacobian not constructed")
		return err
	}
	for i, row := range m.Jacobian {
		for j, e := range row {
			if e.IsValue(0) {
				continue
			}
			if _, err := fmt.Fprintf(w, "d(d%s/dt)/d%s = %s\n", m.names[i], m.names[j], e); err != nil {
				return err
			}
		}
	}
	return nil
}
