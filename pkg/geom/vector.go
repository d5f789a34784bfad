package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec = mgl64.Vec3

var (
	Zero = Vec{0, 0, 0}
	Up   = Vec{0, 1, 0}
)

const epsilon = 1e-9

func IsZero(v Vec) bool { return v.LenSqr() < epsilon }

// Normalize returns the unit vector of v, or the zero vector if v has no length.
func Normalize(v Vec) Vec {
	if IsZero(v) {
		return Zero
	}
	return v.Normalize()
}

// Horizontal drops the vertical component.
func Horizontal(v Vec) Vec {
	return Vec{v.X(), 0, v.Z()}
}

func Distance(from, to Vec) float64 {
	return to.Sub(from).Len()
}

// ClampLength scales v down so that its length does not exceed max.
func ClampLength(v Vec, max float64) Vec {
	l := v.Len()
	if l <= max || l < epsilon {
		return v
	}
	return v.Mul(max / l)
}

// RotateY rotates v around the vertical axis by the given angle in radians.
func RotateY(v Vec, angle float64) Vec {
	sin, cos := math.Sincos(angle)
	return Vec{
		v.X()*cos + v.Z()*sin,
		v.Y(),
		-v.X()*sin + v.Z()*cos,
	}
}

// SteerTowards turns the direction of v towards dir by at most maxAngle
// radians, keeping the length of v.
func SteerTowards(v, dir Vec, maxAngle float64) Vec {
	speed := v.Len()
	if speed < epsilon || IsZero(dir) {
		return v
	}
	from := v.Mul(1 / speed)
	to := dir.Normalize()
	cos := mgl64.Clamp(from.Dot(to), -1, 1)
	angle := math.Acos(cos)
	if angle <= maxAngle {
		return to.Mul(speed)
	}
	t := maxAngle / angle
	blended := from.Mul(1 - t).Add(to.Mul(t))
	return Normalize(blended).Mul(speed)
}

// Box is an axis aligned volume.
type Box struct {
	Min Vec `yaml:"min"`
	Max Vec `yaml:"max"`
}

func (b Box) Contains(p Vec) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b Box) Center() Vec {
	return b.Min.Add(b.Max).Mul(0.5)
}
