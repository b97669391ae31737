package awb

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ColorMatrix is a sensor colour-correction matrix supplied by calibration.
// The stepping core carries it through aggregation without reading it.
type ColorMatrix struct {
	m *mat.Dense
}

func IdentityMatrix() ColorMatrix {
	return NewColorMatrix([9]float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// NewColorMatrix builds a matrix from row-major values.
func NewColorMatrix(values [9]float64) ColorMatrix {
	data := make([]float64, 9)
	copy(data, values[:])
	return ColorMatrix{m: mat.NewDense(3, 3, data)}
}

func (cm ColorMatrix) IsZero() bool { return cm.m == nil }

// Values returns the row-major coefficients. The zero ColorMatrix reports identity.
func (cm ColorMatrix) Values() [9]float64 {
	if cm.m == nil {
		return IdentityMatrix().Values()
	}
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = cm.m.At(i, j)
		}
	}
	return out
}

// Apply returns the matrix applied to c, rounded and clamped at zero.
func (cm ColorMatrix) Apply(c Color) Color {
	if cm.m == nil {
		return c
	}
	in := mat.NewVecDense(3, []float64{float64(c[Red]), float64(c[Green]), float64(c[Blue])})
	var out mat.VecDense
	out.MulVec(cm.m, in)

	var res Color
	for _, ch := range Channels {
		v := math.Round(out.AtVec(int(ch)))
		if v < 0 {
			v = 0
		}
		res[ch] = int(v)
	}
	return res
}
