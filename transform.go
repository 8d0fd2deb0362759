package upright

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Transform maps a plan-sized source onto the output canvas.
// Matrix is a source-to-canvas affine map in the layout used by
// golang.org/x/image/draw: x' = M[0]x + M[1]y + M[2], y' = M[3]x + M[4]y + M[5].
type Transform struct {
	Orientation Orientation
	Canvas      Geometry
	Matrix      f64.Aff3
}

// IsIdentity reports whether the transform leaves pixels in place.
func (t Transform) IsIdentity() bool {
	return t.Matrix == f64.Aff3{1, 0, 0, 0, 1, 0}
}

// OrientationTransform decides how a plan-sized image must be drawn so that
// it displays upright. When the decoder has already applied the tag
// (autoRotated), the result is the identity. Tags 5-8 draw onto a canvas
// with transposed dimensions.
func OrientationTransform(o Orientation, autoRotated bool, plan Geometry) Transform {
	if autoRotated || !o.Valid() {
		o = OrientNormal
	}
	w, h := float64(plan.Width), float64(plan.Height)

	t := Transform{Orientation: o, Canvas: plan}
	if o.SwapsAxes() {
		t.Canvas = plan.Transpose()
	}

	switch o {
	case OrientFlipH:
		t.Matrix = f64.Aff3{-1, 0, w, 0, 1, 0}
	case OrientRotate180:
		t.Matrix = f64.Aff3{-1, 0, w, 0, -1, h}
	case OrientFlipV:
		t.Matrix = f64.Aff3{1, 0, 0, 0, -1, h}
	case OrientTranspose:
		t.Matrix = f64.Aff3{0, 1, 0, 1, 0, 0}
	case OrientRotate90CW:
		t.Matrix = f64.Aff3{0, -1, h, 1, 0, 0}
	case OrientTransverse:
		t.Matrix = f64.Aff3{0, -1, h, -1, 0, w}
	case OrientRotate270CW:
		t.Matrix = f64.Aff3{0, 1, 0, -1, 0, w}
	default:
		t.Matrix = f64.Aff3{1, 0, 0, 0, 1, 0}
	}
	return t
}

// Apply draws src onto dst through the transform, compositing over whatever
// dst already holds. The matrix only permutes whole pixels, so nearest
// neighbour sampling is exact.
func (t Transform) Apply(dst draw.Image, src image.Image) {
	sb := src.Bounds()
	if t.IsIdentity() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
		return
	}
	m := t.Matrix
	// Matrix is expressed relative to the source origin.
	m[2] -= m[0]*float64(sb.Min.X) + m[1]*float64(sb.Min.Y)
	m[5] -= m[3]*float64(sb.Min.X) + m[4]*float64(sb.Min.Y)
	draw.NearestNeighbor.Transform(dst, m, src, sb, draw.Over, nil)
}
