// Package nlist builds neighbor lists: it wraps coordinates into the
// periodic cell, extends them with ghost images out to the cutoff and
// selects the nearest neighbors of every local atom.
package nlist

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingularBox is returned for a cell with zero volume.
var ErrSingularBox = errors.New("singular simulation box")

// cell is a 3x3 row-major matrix of cell vectors.
type cell [9]float64

func cellFrom(box []float64) (cell, error) {
	var c cell
	if len(box) != 9 {
		return c, fmt.Errorf("box must have 9 elements, got %d", len(box))
	}
	copy(c[:], box)
	if math.Abs(c.det()) < 1e-12 {
		return c, ErrSingularBox
	}
	return c, nil
}

func (c cell) det() float64 {
	return c[0]*(c[4]*c[8]-c[5]*c[7]) -
		c[1]*(c[3]*c[8]-c[5]*c[6]) +
		c[2]*(c[3]*c[7]-c[4]*c[6])
}

func (c cell) inverse() cell {
	d := c.det()
	return cell{
		(c[4]*c[8] - c[5]*c[7]) / d, (c[2]*c[7] - c[1]*c[8]) / d, (c[1]*c[5] - c[2]*c[4]) / d,
		(c[5]*c[6] - c[3]*c[8]) / d, (c[0]*c[8] - c[2]*c[6]) / d, (c[2]*c[3] - c[0]*c[5]) / d,
		(c[3]*c[7] - c[4]*c[6]) / d, (c[1]*c[6] - c[0]*c[7]) / d, (c[0]*c[4] - c[1]*c[3]) / d,
	}
}

// apply returns the row vector v times c.
func (c cell) apply(v [3]float64) [3]float64 {
	return [3]float64{
		v[0]*c[0] + v[1]*c[3] + v[2]*c[6],
		v[0]*c[1] + v[1]*c[4] + v[2]*c[7],
		v[0]*c[2] + v[1]*c[5] + v[2]*c[8],
	}
}

// faceDistances returns the distance between each pair of opposite faces.
func (c cell) faceDistances() [3]float64 {
	a := [3][3]float64{{c[0], c[1], c[2]}, {c[3], c[4], c[5]}, {c[6], c[7], c[8]}}
	vol := math.Abs(c.det())
	var out [3]float64
	for i := 0; i < 3; i++ {
		u, v := a[(i+1)%3], a[(i+2)%3]
		cross := [3]float64{
			u[1]*v[2] - u[2]*v[1],
			u[2]*v[0] - u[0]*v[2],
			u[0]*v[1] - u[1]*v[0],
		}
		out[i] = vol / math.Sqrt(cross[0]*cross[0]+cross[1]*cross[1]+cross[2]*cross[2])
	}
	return out
}

// wrap maps v into the cell [0, 1)^3 in fractional coordinates.
func (c cell) wrap(v [3]float64, inv cell) [3]float64 {
	frac := inv.apply(v)
	for k := range frac {
		frac[k] -= math.Floor(frac[k])
	}
	return c.apply(frac)
}
