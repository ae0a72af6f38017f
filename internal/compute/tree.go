package compute

import "github.com/san-kum/rnsim/internal/expr"

// TreeBackend evaluates trees by walking them on every call.
type TreeBackend struct{}

func NewTreeBackend() *TreeBackend { return &TreeBackend{} }

func (b *TreeBackend) Name() string    { return "tree" }
func (b *TreeBackend) Available() bool { return true }

func (b *TreeBackend) Compile(n *expr.Node) (Program, error) {
	if err := checkResolved(n); err != nil {
		return nil, err
	}
	n = expr.Copy(n)
	return func(values []float64, t float64) float64 {
		return expr.Eval(n, values, t)
	}, nil
}
