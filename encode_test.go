package upright

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestFormatSize(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		n    int64
		want string
	}{
		{0, ""},
		{-5, ""},
		{1, "1B"},
		{500, "500B"},
		{1023, "1023B"},
		{1024, "1.00K"},
		{2048, "2.00K"},
		{1536, "1.50K"},
		{1 << 20, "1.00M"},
		{3 << 19, "1.50M"},
		{5 << 30, "5.00G"},
		{1 << 40, "1.00T"},
		{3 << 41, "6.00T"},
	} {
		c.Assert(FormatSize(test.n), qt.Equals, test.want, qt.Commentf("%d", test.n))
	}
}

func TestJPEGQuality(t *testing.T) {
	c := qt.New(t)

	c.Assert(jpegQuality(0.8), qt.Equals, 80)
	c.Assert(jpegQuality(1), qt.Equals, 100)
	c.Assert(jpegQuality(0.001), qt.Equals, 1)
	c.Assert(jpegQuality(0.555), qt.Equals, 56)
	c.Assert(jpegQuality(2), qt.Equals, 100)
}

func TestNormalizeMIME(t *testing.T) {
	c := qt.New(t)

	c.Assert(normalizeMIME("image/jpeg"), qt.Equals, MIMEJPEG)
	c.Assert(normalizeMIME("IMAGE/JPG"), qt.Equals, MIMEJPEG)
	c.Assert(normalizeMIME("image/png; charset=binary"), qt.Equals, "image/png")
	c.Assert(normalizeMIME(" Image/PNG "), qt.Equals, "image/png")

	for _, ok := range []string{"image/jpeg", "image/jpg", "image/png", "Image/JPEG"} {
		c.Assert(SupportedInput(ok), qt.IsTrue, qt.Commentf("%s", ok))
	}
	for _, bad := range []string{"", "image/gif", "image/webp", "text/plain", "image/jpegx"} {
		c.Assert(SupportedInput(bad), qt.IsFalse, qt.Commentf("%s", bad))
	}
}

func TestMIMETypeFor(t *testing.T) {
	c := qt.New(t)

	c.Assert(MIMETypeFor("a/b/photo.JPG"), qt.Equals, MIMEJPEG)
	c.Assert(MIMETypeFor("photo.jpeg"), qt.Equals, MIMEJPEG)
	c.Assert(MIMETypeFor("logo.png"), qt.Equals, "image/png")
	c.Assert(MIMETypeFor("anim.gif"), qt.Equals, "")
	c.Assert(MIMETypeFor("noext"), qt.Equals, "")
}

func TestOutputName(t *testing.T) {
	c := qt.New(t)

	c.Assert(outputName("photo.png"), qt.Equals, "photo.jpg")
	c.Assert(outputName("dir/IMG_0001.JPEG"), qt.Equals, "IMG_0001.jpg")
	c.Assert(outputName("archive.tar.png"), qt.Equals, "archive.tar.jpg")
	c.Assert(outputName("noext"), qt.Equals, "noext.jpg")
	c.Assert(outputName(""), qt.Equals, "image.jpg")
}

func TestDataURI(t *testing.T) {
	c := qt.New(t)
	data := []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}

	uri := DataURI(MIMEJPEG, data)
	c.Assert(strings.HasPrefix(uri, "data:image/jpeg;base64,"), qt.IsTrue)

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
	c.Assert(err, qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, data)
}

func TestEncodersRoundTrip(t *testing.T) {
	c := qt.New(t)
	src := makeTestImage(48, 32)

	for name, enc := range map[string]Encoder{
		"std":    JPEGEncoder{},
		"jpegli": JPEGLIEncoder{},
	} {
		c.Run(name, func(c *qt.C) {
			var buf bytes.Buffer
			c.Assert(enc.Encode(&buf, src, 0.9), qt.IsNil)

			out, err := jpeg.Decode(&buf)
			c.Assert(err, qt.IsNil)
			c.Assert(GeometryOf(out.Bounds()), qt.Equals, Geometry{48, 32})
		})
	}
}

func TestJPEGEncoderDeterministic(t *testing.T) {
	c := qt.New(t)
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	copy(src.Pix, makeTestImage(40, 30).Pix)

	var a, b bytes.Buffer
	c.Assert(JPEGEncoder{}.Encode(&a, src, 0.7), qt.IsNil)
	c.Assert(JPEGEncoder{}.Encode(&b, src, 0.7), qt.IsNil)
	c.Assert(a.Bytes(), qt.DeepEquals, b.Bytes())

	var lower bytes.Buffer
	c.Assert(JPEGEncoder{}.Encode(&lower, src, 0.1), qt.IsNil)
	c.Assert(lower.Len() < a.Len(), qt.IsTrue)
}

func TestEncodable(t *testing.T) {
	c := qt.New(t)

	_, ok := encodable(makeTestImage(4, 4)).(*image.RGBA)
	c.Assert(ok, qt.IsTrue)

	_, ok = encodable(makeTestImageWithAlpha(4, 4)).(*image.NRGBA)
	c.Assert(ok, qt.IsTrue)
}

func TestEncodeCanvas(t *testing.T) {
	c := qt.New(t)
	canvas := image.NewRGBA(image.Rect(0, 0, 64, 48))
	copy(canvas.Pix, makeTestImage(64, 48).Pix)
	in := &Input{Data: make([]byte, 100_000), MIMEType: "image/png", Name: "uploads/cat.png"}

	r, err := encodeCanvas(canvas, JPEGEncoder{}, 0.8, true, in)
	c.Assert(err, qt.IsNil)

	c.Assert(r.OriginalBytes, qt.Equals, int64(100_000))
	c.Assert(r.OriginalSize, qt.Equals, "97.66K")
	c.Assert(r.CompressedBytes, qt.Equals, int64(len(r.Data)))
	c.Assert(r.CompressedSize, qt.Equals, FormatSize(int64(len(r.Data))))
	c.Assert(r.CompressedGeometry, qt.Equals, Geometry{64, 48})
	c.Assert(r.Quality, qt.Equals, 0.8)
	c.Assert(r.Original, qt.Equals, in)
	c.Assert(r.DataURI, qt.Equals, DataURI(MIMEJPEG, r.Data))
	c.Assert(r.File.Name, qt.Equals, "cat.jpg")
	c.Assert(r.File.Type, qt.Equals, MIMEJPEG)
	c.Assert(r.File.Size(), qt.Equals, r.CompressedBytes)
	c.Assert(r.SSIM > 0.9, qt.IsTrue, qt.Commentf("ssim %f", r.SSIM))
	c.Assert(r.SavingsPercent > 0, qt.IsTrue)

	fromReader, err := io.ReadAll(r.File.Reader())
	c.Assert(err, qt.IsNil)
	c.Assert(fromReader, qt.DeepEquals, r.Data)

	again, err := encodeCanvas(canvas, JPEGEncoder{}, 0.8, false, in)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Data, qt.DeepEquals, r.Data)
	c.Assert(again.SSIM, qt.Equals, 0.0)
}

type failingEncoder struct{}

func (failingEncoder) Encode(io.Writer, image.Image, float64) error {
	return errors.New("disk on fire")
}

func TestEncodeCanvasError(t *testing.T) {
	c := qt.New(t)
	_, err := encodeCanvas(image.NewRGBA(image.Rect(0, 0, 2, 2)), failingEncoder{}, 0.8, false, &Input{Data: []byte{1}})
	c.Assert(err, qt.ErrorMatches, "disk on fire")
}
