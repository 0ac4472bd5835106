package types

import "github.com/go-gl/mathgl/mgl32"

// Mat4 is a column-major 4x4 affine matrix with the same layout as mgl32.Mat4.
type Mat4 mgl32.Mat4

// Identity matrix.
func Ident4() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Build a matrix that applies scale, then rotation and finally translation.
func TRS(translation Vec3, rotation Quat, scale Vec3) Mat4 {
	t := mgl32.Translate3D(translation[0], translation[1], translation[2])
	r := rotation.mgl().Mat4()
	s := mgl32.Scale3D(scale[0], scale[1], scale[2])
	return Mat4(t.Mul4(r).Mul4(s))
}

// Multiply two matrices.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(m2)))
}

// Invert the matrix. A singular matrix yields the zero matrix.
func (m Mat4) Inv() Mat4 {
	return Mat4(mgl32.Mat4(m).Inv())
}

// Transform a point (w = 1).
func (m Mat4) MulPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// Transform a direction (w = 0).
func (m Mat4) MulDir(d Vec3) Vec3 {
	return Vec3{
		m[0]*d[0] + m[4]*d[1] + m[8]*d[2],
		m[1]*d[0] + m[5]*d[1] + m[9]*d[2],
		m[2]*d[0] + m[6]*d[1] + m[10]*d[2],
	}
}

// Transform a surface normal using the inverse transpose of the upper 3x3
// block. The caller supplies the already inverted matrix.
func (inv Mat4) MulNormal(n Vec3) Vec3 {
	return Vec3{
		inv[0]*n[0] + inv[1]*n[1] + inv[2]*n[2],
		inv[4]*n[0] + inv[5]*n[1] + inv[6]*n[2],
		inv[8]*n[0] + inv[9]*n[1] + inv[10]*n[2],
	}.Normalize()
}
