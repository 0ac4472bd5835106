package geom

import "github.com/Kai-Fu/KRender-sub000/types"

// Number of intermediate samples used to grow the motion envelope of a
// rotating instance.
const envelopeRotationSamples = 8

// LocalTRSFrame places an object with a scale, then a rotation, then a
// translation.
type LocalTRSFrame struct {
	Translation types.Vec3
	Rotation    types.Quat
	Scale       types.Vec3
}

// The identity frame.
func IdentityFrame() LocalTRSFrame {
	return LocalTRSFrame{
		Rotation: types.QuatIdent(),
		Scale:    types.Splat3(1),
	}
}

// A frame that only translates.
func TranslationFrame(t types.Vec3) LocalTRSFrame {
	f := IdentityFrame()
	f.Translation = t
	return f
}

// Object to world matrix.
func (f LocalTRSFrame) Matrix() types.Mat4 {
	return types.TRS(f.Translation, f.Rotation, f.Scale)
}

// Interpolate between f (t=0) and to (t=1). Translation and scale are
// interpolated linearly and rotation spherically; the endpoints are
// reproduced exactly.
func (f LocalTRSFrame) Interpolate(to LocalTRSFrame, t float32) LocalTRSFrame {
	if t <= 0 {
		return f
	}
	if t >= 1 {
		return to
	}
	return LocalTRSFrame{
		Translation: f.Translation.Lerp(to.Translation, t),
		Rotation:    f.Rotation.Slerp(to.Rotation, t),
		Scale:       f.Scale.Lerp(to.Scale, t),
	}
}

// AnimatedTransform holds one (static) or two (linearly animated) keyframes
// spanning the time window [0, 1].
type AnimatedTransform struct {
	Start    LocalTRSFrame
	End      LocalTRSFrame
	Animated bool

	startM   types.Mat4
	startInv types.Mat4
	endM     types.Mat4
	endInv   types.Mat4
}

// A transform that does not change over time.
func NewStaticTransform(f LocalTRSFrame) AnimatedTransform {
	a := AnimatedTransform{Start: f, End: f}
	a.precompute()
	return a
}

// A transform interpolated between two keyframes.
func NewAnimatedTransform(start, end LocalTRSFrame) AnimatedTransform {
	a := AnimatedTransform{Start: start, End: end, Animated: start != end}
	a.precompute()
	return a
}

func (a *AnimatedTransform) precompute() {
	a.startM = a.Start.Matrix()
	a.startInv = a.startM.Inv()
	a.endM = a.End.Matrix()
	a.endInv = a.endM.Inv()
}

// Interpolate returns the frame at time t. Static transforms ignore t.
func (a *AnimatedTransform) Interpolate(t float32) LocalTRSFrame {
	if !a.Animated {
		return a.Start
	}
	return a.Start.Interpolate(a.End, t)
}

// Object to world matrix at time t.
func (a *AnimatedTransform) MatrixAt(t float32) types.Mat4 {
	switch {
	case !a.Animated || t <= 0:
		return a.startM
	case t >= 1:
		return a.endM
	}
	return a.Interpolate(t).Matrix()
}

// World to object matrix at time t.
func (a *AnimatedTransform) InverseAt(t float32) types.Mat4 {
	switch {
	case !a.Animated || t <= 0:
		return a.startInv
	case t >= 1:
		return a.endInv
	}
	return a.Interpolate(t).Matrix().Inv()
}

// Envelope returns the world-space motion envelope of an object whose local
// bounds are local: the union of the bounds at both keyframes. Rotating
// transforms are additionally sampled in between so the swept volume stays
// covered.
func (a *AnimatedTransform) Envelope(local BBox) BBox {
	if local.IsEmpty() {
		return local
	}
	env := local.Transform(a.startM)
	if !a.Animated {
		return env.Pad()
	}
	env = env.Union(local.Transform(a.endM))

	if !a.Start.Rotation.Equal(a.End.Rotation) {
		for i := 1; i < envelopeRotationSamples; i++ {
			t := float32(i) / envelopeRotationSamples
			env = env.Union(local.Transform(a.MatrixAt(t)))
		}
		// Chords between samples cut inside the arc of a rotating corner.
		env = env.grow(env.Diagonal() * 0.02)
	}
	return env.Pad()
}

func (b BBox) grow(d float32) BBox {
	return BBox{
		Min: b.Min.Sub(types.Splat3(d)),
		Max: b.Max.Add(types.Splat3(d)),
	}
}
