package compute

import "gonum.org/v1/gonum/floats"

// MatTVecMul writes transpose(mat) * vec into out.
func MatTVecMul(mat [][]float64, vec, out []float64) {
	for j := range out {
		out[j] = 0
	}
	for i, row := range mat {
		floats.AddScaled(out, vec[i], row)
	}
}
