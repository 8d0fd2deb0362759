package upright

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// SSIM constants from Wang et al. with an 8-bit dynamic range.
const (
	ssimK1 = 0.01
	ssimK2 = 0.03
	ssimL  = 255.0
	ssimC1 = (ssimK1 * ssimL) * (ssimK1 * ssimL)
	ssimC2 = (ssimK2 * ssimL) * (ssimK2 * ssimL)

	ssimWindow = 8
	ssimMaxDim = 512
)

// SSIM computes the structural similarity of two images on BT.601 luma.
// 1.0 means identical. Both images are reduced so the long edge is at most
// 512 pixels, and b is scaled to a's size when they differ.
func SSIM(a, b image.Image) float64 {
	size := GeometryOf(a.Bounds())
	if size.Width <= 0 || size.Height <= 0 {
		return 1.0
	}
	if long := max(size.Width, size.Height); long > ssimMaxDim {
		scale := float64(ssimMaxDim) / float64(long)
		size = Geometry{
			Width:  max(ssimWindow, int(math.Round(float64(size.Width)*scale))),
			Height: max(ssimWindow, int(math.Round(float64(size.Height)*scale))),
		}
	}

	la := luma(a, size)
	lb := luma(b, size)
	if size.Width < ssimWindow || size.Height < ssimWindow {
		return ssimStats(la, lb, size.Width, 0, 0, size.Width, size.Height, nil)
	}
	return windowedSSIM(la, lb, size)
}

// luma returns the grayscale plane of img scaled to size.
func luma(img image.Image, size Geometry) []float64 {
	g := image.NewGray(image.Rect(0, 0, size.Width, size.Height))
	if GeometryOf(img.Bounds()) == size {
		draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(g, g.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	out := make([]float64, len(g.Pix))
	for i, v := range g.Pix {
		out[i] = float64(v)
	}
	return out
}

// windowedSSIM averages SSIM over every 8x8 Gaussian-weighted window.
func windowedSSIM(la, lb []float64, size Geometry) float64 {
	kernel := gaussianKernel(ssimWindow, 1.5)
	rows := size.Height - ssimWindow + 1
	cols := size.Width - ssimWindow + 1

	sums := make([]float64, rows)
	parallelDo(0, rows, func(y int) {
		var s float64
		for x := 0; x < cols; x++ {
			s += ssimStats(la, lb, size.Width, x, y, ssimWindow, ssimWindow, kernel)
		}
		sums[y] = s
	})

	var total float64
	for _, s := range sums {
		total += s
	}
	return total / float64(rows*cols)
}

// ssimStats computes SSIM over the w x h window at (x0, y0) of two planes
// with the given stride. A nil kernel weights every sample equally.
func ssimStats(la, lb []float64, stride, x0, y0, w, h int, kernel []float64) float64 {
	n := w * h
	if n == 0 {
		return 1.0
	}
	weight := func(i int) float64 {
		if kernel == nil {
			return 1.0 / float64(n)
		}
		return kernel[i]
	}

	var muA, muB float64
	for y, k := 0, 0; y < h; y++ {
		off := (y0+y)*stride + x0
		for x := 0; x < w; x, k = x+1, k+1 {
			wt := weight(k)
			muA += la[off+x] * wt
			muB += lb[off+x] * wt
		}
	}

	var sigAA, sigBB, sigAB float64
	for y, k := 0, 0; y < h; y++ {
		off := (y0+y)*stride + x0
		for x := 0; x < w; x, k = x+1, k+1 {
			wt := weight(k)
			da := la[off+x] - muA
			db := lb[off+x] - muB
			sigAA += da * da * wt
			sigBB += db * db * wt
			sigAB += da * db * wt
		}
	}

	num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)
	return num / den
}

// gaussianKernel creates a normalized size x size Gaussian kernel.
func gaussianKernel(size int, sigma float64) []float64 {
	kernel := make([]float64, size*size)
	half := float64(size-1) / 2
	var sum float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-half, float64(y)-half
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			kernel[y*size+x] = v
			sum += v
		}
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}
