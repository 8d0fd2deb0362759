package upright

import (
	"fmt"
	"image"
)

// Geometry is a pixel size.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GeometryOf returns the size of r.
func GeometryOf(r image.Rectangle) Geometry {
	return Geometry{Width: r.Dx(), Height: r.Dy()}
}

// Transpose swaps width and height.
func (g Geometry) Transpose() Geometry {
	return Geometry{Width: g.Height, Height: g.Width}
}

// Pixels returns Width*Height.
func (g Geometry) Pixels() int {
	return g.Width * g.Height
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Bounds limits the planned geometry. A non-positive value leaves that axis
// unbounded.
type Bounds struct {
	MaxWidth  int
	MaxHeight int
}

// Plan scales natural into b while preserving its aspect ratio. Landscape
// and square images are bounded by MaxWidth, portrait images by MaxHeight.
// Images that already fit are never upsampled.
func Plan(natural Geometry, b Bounds) Geometry {
	w, h := natural.Width, natural.Height
	if w <= 0 || h <= 0 {
		return natural
	}

	switch {
	case w >= h && b.MaxWidth > 0 && w > b.MaxWidth:
		return Geometry{Width: b.MaxWidth, Height: scaleDim(b.MaxWidth, h, w)}
	case h >= w && b.MaxHeight > 0 && h > b.MaxHeight:
		return Geometry{Width: scaleDim(b.MaxHeight, w, h), Height: b.MaxHeight}
	default:
		return natural
	}
}

// scaleDim returns target*num/den truncated, never below one pixel.
func scaleDim(target, num, den int) int {
	v := int(int64(target) * int64(num) / int64(den))
	if v < 1 {
		return 1
	}
	return v
}
