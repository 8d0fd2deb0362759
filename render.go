package upright

import (
	"context"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// RenderOptions controls how a decoded image is drawn onto the output canvas.
type RenderOptions struct {
	Background      color.Color
	Resampler       Resampler
	MaxCanvasPixels int
}

// Render scales src to plan, fills an opaque canvas with the background and
// draws the scaled image through the orientation transform. The returned
// canvas is upright and has no transparent pixels.
func Render(ctx context.Context, src image.Image, o Orientation, plan Geometry, autoRotated bool, opts RenderOptions) (*image.RGBA, error) {
	if plan.Width <= 0 || plan.Height <= 0 {
		return nil, errors.Errorf("empty plan %s", plan)
	}
	if opts.MaxCanvasPixels > 0 && plan.Pixels() > opts.MaxCanvasPixels {
		return nil, errors.Errorf("canvas %s exceeds %d pixels", plan, opts.MaxCanvasPixels)
	}
	if opts.Resampler == nil {
		opts.Resampler = DefaultResampler()
	}
	if opts.Background == nil {
		opts.Background = color.White
	}

	t := OrientationTransform(o, autoRotated, plan)
	scaled := opts.Resampler.Resample(src, plan)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, t.Canvas.Width, t.Canvas.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(opaque(opts.Background)), image.Point{}, draw.Src)
	t.Apply(canvas, scaled)
	return canvas, nil
}

// opaque drops the alpha channel of c.
func opaque(c color.Color) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = 0xFF
	return n
}
