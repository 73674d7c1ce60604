package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// TangentEpsilon keeps tangent divisors away from zero.
const TangentEpsilon float32 = 1e-4

// CubicInterp evaluates the Hermite curve from p0 (tangent t0) to p1 (tangent t1) at s in [0,1].
func CubicInterp(p0, t0, p1, t1 mgl32.Vec3, s float32) mgl32.Vec3 {
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	return p0.Mul(h00).Add(t0.Mul(h10)).Add(p1.Mul(h01)).Add(t1.Mul(h11))
}

// CubicInterpDerivative is the derivative of CubicInterp with respect to s.
func CubicInterpDerivative(p0, t0, p1, t1 mgl32.Vec3, s float32) mgl32.Vec3 {
	s2 := s * s
	d00 := 6*s2 - 6*s
	d10 := 3*s2 - 4*s + 1
	d01 := -6*s2 + 6*s
	d11 := 3*s2 - 2*s
	return p0.Mul(d00).Add(t0.Mul(d10)).Add(p1.Mul(d01)).Add(t1.Mul(d11))
}

// SafeDivisor returns d, pushed away from zero by TangentEpsilon keeping its sign.
func SafeDivisor(d float32) float32 {
	if d >= 0 && d < TangentEpsilon {
		return TangentEpsilon
	}
	if d < 0 && d > -TangentEpsilon {
		return -TangentEpsilon
	}
	return d
}

// AngleBetween returns the angle between a and b in degrees. Zero vectors give 0.
func AngleBetween(a, b mgl32.Vec3) float32 {
	la, lb := a.Len(), b.Len()
	if la < TangentEpsilon || lb < TangentEpsilon {
		return 0
	}
	cos := mgl32.Clamp(a.Dot(b)/(la*lb), -1, 1)
	return mgl32.RadToDeg(float32(math.Acos(float64(cos))))
}

// SafeNormalize normalizes v, returning fallback for near zero vectors.
func SafeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if v.Len() < TangentEpsilon {
		return fallback
	}
	return v.Normalize()
}
