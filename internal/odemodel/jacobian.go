package odemodel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/deriv"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
)

// ExpandAssigned replaces assigned variables in n by their assignment
// expressions, last assigned index first, until none remain. Build rejects
// circular assignments, so the expansion terminates.
func (m *Model) ExpandAssigned(n *expr.Node) *expr.Node {
	out := expr.Copy(n)
	for pass := 0; pass <= m.NAss; pass++ {
		changed := false
		for i := m.NEq + m.NAss - 1; i >= m.NEq; i-- {
			if expr.DependsOnIndex(out, i) {
				out = expr.SubstituteIndex(out, i, m.Assignments[i-m.NEq])
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out
}

func (m *Model) expandedRates() []*expr.Node {
	if m.expanded == nil {
		m.expanded = make([]*expr.Node, m.NEq)
		for i, r := range m.Rates {
			m.expanded[i] = m.ExpandAssigned(r)
		}
	}
	return m.expanded
}

// derive differentiates every expanded rate with respect to each of wrt and
// reports how many entries hold a failure marker.
func (m *Model) derive(wrt []int) ([][]*expr.Node, int) {
	rates := m.expandedRates()
	out := make([][]*expr.Node, len(rates))
	failed := 0
	for i, r := range rates {
		out[i] = make([]*expr.Node, len(wrt))
		for j, idx := range wrt {
			d := deriv.Differentiate(r, idx)
			if expr.CountFail(d) > 0 {
				failed++
			}
			out[i][j] = d
		}
	}
	return out, failed
}

// ConstructJacobian builds the neq x neq matrix of rate derivatives. When
// some entry cannot be differentiated the matrix stays unset and the count
// of failed entries is returned with ErrJacobian; integration then falls
// back to a numerical approximation.
func (m *Model) ConstructJacobian() (int, error) {
	wrt := make([]int, m.NEq)
	for i := range wrt {
		wrt[i] = i
	}
	jac, failed := m.derive(wrt)
	if failed > 0 {
		m.Jacobian = nil
		m.store.Record(diag.Warning, diag.CodeDifferentiation,
			"jacobian: %d entries could not be differentiated; falling back to finite differences", failed)
		return failed, fmt.Errorf("%w: %d entries", ErrJacobian, failed)
	}
	m.Jacobian = jac
	logrus.Debugf("odemodel: %s: jacobian %dx%d constructed", m.ID, m.NEq, m.NEq)
	return 0, nil
}

// ConstructSensitivity builds the rate derivatives with respect to the
// constants at indices, or every constant when indices is empty, together
// with the derivatives of the initial values.
func (m *Model) ConstructSensitivity(indices []int) (int, error) {
	lo, hi := m.ConstantRange()
	if len(indices) == 0 {
		for i := lo; i < hi; i++ {
			indices = append(indices, i)
		}
	}
	for _, idx := range indices {
		if idx < lo || idx >= hi {
			name := fmt.Sprint(idx)
			if idx >= 0 && idx < m.Total() {
				name = m.names[idx]
			}
			m.store.Record(diag.Error, diag.CodeSettings, "sensitivity parameter %s is not a constant", name)
			return 0, fmt.Errorf("%w: %s", ErrNotConstant, name)
		}
	}

	sens, failed := m.derive(indices)
	leaves := make(map[int]bool, len(indices))
	for _, idx := range indices {
		leaves[idx] = true
	}
	initial := make([][]*expr.Node, m.NEq)
	for i := 0; i < m.NEq; i++ {
		y0 := m.expandInitial(i, leaves)
		initial[i] = make([]*expr.Node, len(indices))
		for j, idx := range indices {
			d := deriv.Differentiate(y0, idx)
			if expr.CountFail(d) > 0 {
				failed++
			}
			initial[i][j] = d
		}
	}

	if failed > 0 {
		m.FreeSensitivity()
		m.store.Record(diag.Warning, diag.CodeDifferentiation,
			"sensitivity: %d entries could not be differentiated", failed)
		return failed, fmt.Errorf("%w: %d entries", ErrSensitivity, failed)
	}
	m.Sensitivity = sens
	m.SensIndices = append([]int(nil), indices...)
	m.InitialSensitivity = initial
	logrus.Debugf("odemodel: %s: sensitivity %dx%d constructed", m.ID, m.NEq, len(indices))
	return 0, nil
}

// expandInitial rewrites the initial expression of i in terms of leaves and
// plain numeric initial values.
func (m *Model) expandInitial(i int, leaves map[int]bool) *expr.Node {
	out := expr.Copy(m.Initial[i])
	for pass := 0; pass <= m.Total(); pass++ {
		changed := false
		for _, k := range expr.Indices(out) {
			if leaves[k] || m.Initial[k].IsConst() {
				continue
			}
			out = expr.SubstituteIndex(out, k, m.Initial[k])
			changed = true
		}
		if !changed {
			break
		}
	}
	return out
}
