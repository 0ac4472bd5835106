// Package simd provides a portable 4-wide lane abstraction and the ray
// intersection kernels built on top of it.
//
// Lane i of every value refers to the same logical item (box or triangle).
// Kernels return a Mask4 whose bit i is set when lane i passed the test.
package simd

import "math"

// The number of lanes processed by each kernel invocation.
const Width = 4

// Float4 holds four float32 lanes.
type Float4 [Width]float32

// Mask4 holds one bit per lane.
type Mask4 uint8

// All lanes set.
const FullMask Mask4 = 1<<Width - 1

// Broadcast s to all lanes.
func Splat(s float32) Float4 {
	return Float4{s, s, s, s}
}

func (a Float4) Add(b Float4) Float4 {
	return Float4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}

func (a Float4) Sub(b Float4) Float4 {
	return Float4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
}

func (a Float4) Mul(b Float4) Float4 {
	return Float4{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
}

// Scale all lanes by s.
func (a Float4) Scale(s float32) Float4 {
	return Float4{a[0] * s, a[1] * s, a[2] * s, a[3] * s}
}

// Per-lane reciprocal.
func (a Float4) Recip() Float4 {
	return Float4{1 / a[0], 1 / a[1], 1 / a[2], 1 / a[3]}
}

// Lerp returns a + (b - a) * t on every lane.
func (a Float4) Lerp(b Float4, t float32) Float4 {
	return Float4{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

// MaxNum returns the per-lane maximum. A NaN lane in b leaves a unchanged.
func (a Float4) MaxNum(b Float4) Float4 {
	for i := 0; i < Width; i++ {
		if b[i] > a[i] {
			a[i] = b[i]
		}
	}
	return a
}

// MinNum returns the per-lane minimum. A NaN lane in b leaves a unchanged.
func (a Float4) MinNum(b Float4) Float4 {
	for i := 0; i < Width; i++ {
		if b[i] < a[i] {
			a[i] = b[i]
		}
	}
	return a
}

func (a Float4) Less(b Float4) Mask4 {
	var m Mask4
	for i := 0; i < Width; i++ {
		if a[i] < b[i] {
			m |= 1 << i
		}
	}
	return m
}

func (a Float4) LessEq(b Float4) Mask4 {
	var m Mask4
	for i := 0; i < Width; i++ {
		if a[i] <= b[i] {
			m |= 1 << i
		}
	}
	return m
}

func (a Float4) Greater(b Float4) Mask4 {
	return b.Less(a)
}

func (a Float4) GreaterEq(b Float4) Mask4 {
	return b.LessEq(a)
}

// Lanes that are neither zero nor NaN.
func (a Float4) NonZero() Mask4 {
	var m Mask4
	for i := 0; i < Width; i++ {
		if a[i] != 0 && !math.IsNaN(float64(a[i])) {
			m |= 1 << i
		}
	}
	return m
}

// Dot3 computes the per-lane dot product of two lane-interleaved vectors.
func Dot3(a, b *[3]Float4) Float4 {
	return a[0].Mul(b[0]).Add(a[1].Mul(b[1])).Add(a[2].Mul(b[2]))
}

// Cross3 computes the per-lane cross product of two lane-interleaved vectors.
func Cross3(a, b *[3]Float4) [3]Float4 {
	return [3]Float4{
		a[1].Mul(b[2]).Sub(a[2].Mul(b[1])),
		a[2].Mul(b[0]).Sub(a[0].Mul(b[2])),
		a[0].Mul(b[1]).Sub(a[1].Mul(b[0])),
	}
}

// Returns true if lane i is set.
func (m Mask4) Has(i int) bool {
	return m&(1<<i) != 0
}

// Returns true if any lane is set.
func (m Mask4) Any() bool {
	return m != 0
}

// Number of set lanes.
func (m Mask4) Count() int {
	n := 0
	for ; m != 0; m &= m - 1 {
		n++
	}
	return n
}

// Mask with the first n lanes set.
func FirstN(n int) Mask4 {
	if n >= Width {
		return FullMask
	}
	if n <= 0 {
		return 0
	}
	return Mask4(1<<n - 1)
}
