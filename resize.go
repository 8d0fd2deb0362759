package upright

import (
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler scales an image to exactly size.
type Resampler interface {
	Resample(src image.Image, size Geometry) image.Image
}

// DefaultResampler returns the Catmull-Rom kernel resampler.
func DefaultResampler() Resampler {
	return KernelResampler{Kernel: draw.CatmullRom}
}

// KernelResampler scales with a golang.org/x/image/draw interpolator.
type KernelResampler struct {
	Kernel draw.Scaler
}

// Resample implements Resampler.
func (k KernelResampler) Resample(src image.Image, size Geometry) image.Image {
	if GeometryOf(src.Bounds()) == size {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	k.Kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// NFNTResampler scales with github.com/nfnt/resize.
type NFNTResampler struct {
	Interp resize.InterpolationFunction
}

// Resample implements Resampler.
func (n NFNTResampler) Resample(src image.Image, size Geometry) image.Image {
	if GeometryOf(src.Bounds()) == size {
		return src
	}
	return resize.Resize(uint(size.Width), uint(size.Height), src, n.Interp)
}

// LanczosResampler is a native two-pass Lanczos-3 filter that weights
// samples by alpha, so transparent pixels do not bleed colour into their
// neighbours.
type LanczosResampler struct{}

// Resample implements Resampler.
func (LanczosResampler) Resample(src image.Image, size Geometry) image.Image {
	if GeometryOf(src.Bounds()) == size {
		return src
	}
	return lanczosResize(toNRGBARef(src), size.Width, size.Height)
}

// lanczosResize performs Lanczos-3 interpolation, horizontal pass first.
func lanczosResize(img *image.NRGBA, dstW, dstH int) *image.NRGBA {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}

	tmp := image.NewNRGBA(image.Rect(0, 0, dstW, srcH))
	cols := lanczosTaps(srcW, dstW)
	parallelDo(0, srcH, func(y int) {
		for dx, taps := range cols {
			convolve(tmp.Pix[y*tmp.Stride+dx*4:], img.Pix, taps, func(i int) int {
				return y*img.Stride + i*4
			})
		}
	})

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	rows := lanczosTaps(srcH, dstH)
	parallelDo(0, dstW, func(x int) {
		for dy, taps := range rows {
			convolve(dst.Pix[dy*dst.Stride+x*4:], tmp.Pix, taps, func(i int) int {
				return i*tmp.Stride + x*4
			})
		}
	})
	return dst
}

const lanczosA = 3.0

func lanczosKernel(x float64) float64 {
	if x == 0 {
		return 1.0
	}
	if x < 0 {
		x = -x
	}
	if x >= lanczosA {
		return 0.0
	}
	xpi := x * math.Pi
	return (lanczosA * math.Sin(xpi) * math.Sin(xpi/lanczosA)) / (xpi * xpi)
}

type tap struct {
	index  int
	weight float64
}

// lanczosTaps precomputes normalized filter taps for every destination
// sample along one axis.
func lanczosTaps(srcN, dstN int) [][]tap {
	ratio := float64(srcN) / float64(dstN)
	scale := math.Max(ratio, 1.0)
	support := lanczosA * scale

	out := make([][]tap, dstN)
	for d := 0; d < dstN; d++ {
		center := (float64(d)+0.5)*ratio - 0.5
		lo := max(int(math.Ceil(center-support)), 0)
		hi := min(int(math.Floor(center+support)), srcN-1)

		var sum float64
		taps := make([]tap, 0, hi-lo+1)
		for s := lo; s <= hi; s++ {
			if w := lanczosKernel((float64(s) - center) / scale); w != 0 {
				sum += w
				taps = append(taps, tap{s, w})
			}
		}
		if sum != 0 {
			for i := range taps {
				taps[i].weight /= sum
			}
		}
		out[d] = taps
	}
	return out
}

// convolve writes one alpha-weighted NRGBA sample into dst[0:4].
func convolve(dst, src []uint8, taps []tap, offset func(int) int) {
	var r, g, b, a float64
	for _, t := range taps {
		off := offset(t.index)
		aw := float64(src[off+3]) * t.weight
		r += float64(src[off]) * aw
		g += float64(src[off+1]) * aw
		b += float64(src[off+2]) * aw
		a += aw
	}
	if a == 0 {
		return
	}
	inv := 1.0 / a
	dst[0] = clampF(r * inv)
	dst[1] = clampF(g * inv)
	dst[2] = clampF(b * inv)
	dst[3] = clampF(a)
}

// parallelDo executes fn(i) for i in [start, stop) across multiple goroutines.
func parallelDo(start, stop int, fn func(i int)) {
	count := stop - start
	if count <= 0 {
		return
	}

	procs := min(runtime.GOMAXPROCS(0), count)
	if procs <= 1 {
		for i := start; i < stop; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	batch := (count + procs - 1) / procs
	for from := start; from < stop; from += batch {
		to := min(from+batch, stop)
		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			for i := from; i < to; i++ {
				fn(i)
			}
		}(from, to)
	}
	wg.Wait()
}
