package upright

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	qt "github.com/frankban/quicktest"
)

// ── Test Helpers ────────────────────────────────────────────────────────────

func makeTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off] = uint8(x * 255 / w)
			img.Pix[off+1] = uint8(y * 255 / h)
			img.Pix[off+2] = uint8((x + y) % 256)
			img.Pix[off+3] = 0xff
		}
	}
	return img
}

func makeTestImageWithAlpha(w, h int) *image.NRGBA {
	img := makeTestImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off+3] = uint8(x * 255 / w)
		}
	}
	return img
}

func makeSolidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func ctx() context.Context { return context.Background() }

// quadColors are the top-left, top-right, bottom-left and bottom-right
// colours drawn by makeQuadrants.
var quadColors = [4]color.NRGBA{
	{255, 0, 0, 255},
	{0, 255, 0, 255},
	{0, 0, 255, 255},
	{255, 255, 255, 255},
}

func makeQuadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if x >= w/2 {
				q++
			}
			if y >= h/2 {
				q += 2
			}
			img.SetNRGBA(x, y, quadColors[q])
		}
	}
	return img
}

// quadrantsOf samples the centre of each quadrant of img.
func quadrantsOf(img image.Image) [4]color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pts := [4]image.Point{{w / 4, h / 4}, {3 * w / 4, h / 4}, {w / 4, 3 * h / 4}, {3 * w / 4, 3 * h / 4}}
	var out [4]color.NRGBA
	for i, p := range pts {
		out[i] = color.NRGBAModel.Convert(img.At(b.Min.X+p.X, b.Min.Y+p.Y)).(color.NRGBA)
	}
	return out
}

// uprightQuadrants returns the quadrant colours a viewer sees for a
// makeQuadrants image stored with orientation o.
func uprightQuadrants(o Orientation) [4]color.NRGBA {
	return quadrantsOf(imagingFix(makeQuadrants(2, 2), o))
}

// imagingFix applies orientation o the way disintegration/imaging does.
func imagingFix(img image.Image, o Orientation) *image.NRGBA {
	switch o {
	case OrientFlipH:
		return imaging.FlipH(img)
	case OrientRotate180:
		return imaging.Rotate180(img)
	case OrientFlipV:
		return imaging.FlipV(img)
	case OrientTranspose:
		return imaging.Transpose(img)
	case OrientRotate90CW:
		return imaging.Rotate270(img)
	case OrientTransverse:
		return imaging.Transverse(img)
	case OrientRotate270CW:
		return imaging.Rotate90(img)
	}
	return imaging.Clone(img)
}

func assertQuadrants(c *qt.C, img image.Image, want [4]color.NRGBA) {
	c.Helper()
	got := quadrantsOf(img)
	for i := range want {
		c.Assert(closeColor(got[i], want[i], 40), qt.IsTrue,
			qt.Commentf("quadrant %d: got %v, want %v", i, got[i], want[i]))
	}
}

func closeColor(a, b color.NRGBA, tol int) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) <= tol && d(a.G, b.G) <= tol && d(a.B, b.B) <= tol && d(a.A, b.A) <= tol
}

func encodeJPEG(c *qt.C, img image.Image) []byte {
	c.Helper()
	var buf bytes.Buffer
	c.Assert(jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}), qt.IsNil)
	return buf.Bytes()
}

func encodePNG(c *qt.C, img image.Image) []byte {
	c.Helper()
	var buf bytes.Buffer
	c.Assert(png.Encode(&buf, img), qt.IsNil)
	return buf.Bytes()
}

// exifTIFF returns a TIFF stream whose IFD0 holds only the Orientation tag.
func exifTIFF(o Orientation, order binary.ByteOrder) []byte {
	var tiff bytes.Buffer
	if order == binary.LittleEndian {
		tiff.WriteString("II")
	} else {
		tiff.WriteString("MM")
	}
	w := func(v any) {
		if err := binary.Write(&tiff, order, v); err != nil {
			panic(err)
		}
	}
	w(uint16(42))
	w(uint32(8)) // IFD0 offset
	w(uint16(1)) // entry count
	w(uint16(0x0112))
	w(uint16(3)) // SHORT
	w(uint32(1))
	w(uint16(o))
	w(uint16(0))
	w(uint32(0)) // no next IFD
	return tiff.Bytes()
}

// withOrientation inserts an EXIF APP1 segment carrying only the IFD0
// Orientation tag right after the JPEG SOI marker.
func withOrientation(data []byte, o Orientation, order binary.ByteOrder) []byte {
	payload := append([]byte("Exif\x00\x00"), exifTIFF(o, order)...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	if len(data) < 2 {
		panic(fmt.Sprintf("not a JPEG: %d bytes", len(data)))
	}
	out := make([]byte, 0, len(data)+len(seg))
	out = append(out, data[:2]...)
	out = append(out, seg...)
	return append(out, data[2:]...)
}

// pngWithOrientation adds an eXIf chunk to an encoded PNG.
func pngWithOrientation(data []byte, o Orientation, order binary.ByteOrder) []byte {
	return withPNGChunk(data, "eXIf", exifTIFF(o, order))
}

// webpWithOrientation builds an extended WebP container with a VP8X header
// announcing EXIF and an EXIF chunk. It carries no image data.
func webpWithOrientation(o Orientation, order binary.ByteOrder) []byte {
	chunk := func(fourcc string, payload []byte) []byte {
		b := append([]byte(fourcc), 0, 0, 0, 0)
		binary.LittleEndian.PutUint32(b[4:], uint32(len(payload)))
		b = append(b, payload...)
		if len(payload)%2 == 1 {
			b = append(b, 0)
		}
		return b
	}
	vp8x := make([]byte, 10)
	vp8x[0] = 1 << 3 // EXIF present

	body := append([]byte("WEBP"), chunk("VP8X", vp8x)...)
	body = append(body, chunk("EXIF", exifTIFF(o, order))...)

	out := append([]byte("RIFF"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	return append(out, body...)
}

// taggedQuadrants returns a w x h quadrant JPEG tagged with o.
func taggedQuadrants(c *qt.C, w, h int, o Orientation) []byte {
	return withOrientation(encodeJPEG(c, makeQuadrants(w, h)), o, binary.BigEndian)
}
