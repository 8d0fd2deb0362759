package upright

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gen2brain/jpegli"
)

// Encoder writes the rendered canvas as JPEG. quality is in (0, 1].
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality float64) error
}

// JPEGEncoder uses image/jpeg. Its output is deterministic.
type JPEGEncoder struct{}

// Encode implements Encoder.
func (JPEGEncoder) Encode(w io.Writer, img image.Image, quality float64) error {
	return jpeg.Encode(w, encodable(img), &jpeg.Options{Quality: jpegQuality(quality)})
}

// JPEGLIEncoder uses github.com/gen2brain/jpegli, which produces smaller
// files than image/jpeg at the same visual quality.
type JPEGLIEncoder struct {
	// ChromaSubsampling defaults to 4:4:4.
	ChromaSubsampling image.YCbCrSubsampleRatio
}

// Encode implements Encoder.
func (e JPEGLIEncoder) Encode(w io.Writer, img image.Image, quality float64) error {
	return jpegli.Encode(w, encodable(img), &jpegli.EncodingOptions{
		Quality:           jpegQuality(quality),
		ChromaSubsampling: e.ChromaSubsampling,
	})
}

// encodable reinterprets opaque NRGBA as RGBA, which the encoders convert
// to YCbCr without a per-pixel interface call.
func encodable(img image.Image) image.Image {
	if n, ok := img.(*image.NRGBA); ok && isOpaque(n) {
		return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
	}
	return img
}

// jpegQuality maps (0, 1] onto the 1..100 JPEG scale.
func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// FormatSize renders a byte count with a 1024-based unit ladder:
// "500B", "2.00K", "1.50M", "3.00G", "1.00T". Zero yields "".
func FormatSize(n int64) string {
	if n <= 0 {
		return ""
	}
	const unit = 1024.0
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	v := float64(n)
	for _, suffix := range []string{"K", "M", "G"} {
		v /= unit
		if v < unit {
			return fmt.Sprintf("%.2f%s", v, suffix)
		}
	}
	return fmt.Sprintf("%.2fT", v/unit)
}

// DataURI returns data as a base64 data URI of the given MIME type.
func DataURI(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// normalizeMIME lowercases t, strips parameters and folds image/jpg into
// image/jpeg.
func normalizeMIME(t string) string {
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(t))
	}
	if mt == "image/jpg" {
		return MIMEJPEG
	}
	return mt
}

// SupportedInput reports whether mimeType is accepted as input.
func SupportedInput(mimeType string) bool {
	switch normalizeMIME(mimeType) {
	case MIMEJPEG, "image/png":
		return true
	}
	return false
}

// MIMETypeFor returns the input MIME type implied by a file name, or "".
func MIMETypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".jpe", ".jfif":
		return MIMEJPEG
	case ".png":
		return "image/png"
	}
	return ""
}

func validateInput(in *Input) error {
	if in == nil || len(in.Data) == 0 {
		return validationf("no image data")
	}
	if !SupportedInput(in.MIMEType) {
		return validationf("unsupported type %q, expected image/jpeg, image/jpg or image/png", in.MIMEType)
	}
	return nil
}

// outputName replaces the extension of name with .jpg.
func outputName(name string) string {
	base := filepath.Base(name)
	if name == "" || base == "." || base == string(filepath.Separator) {
		return "image.jpg"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
}

// encodeCanvas encodes canvas and packages the output with its size
// metadata. The SSIM is only computed when measure is set.
func encodeCanvas(canvas image.Image, enc Encoder, quality float64, measure bool, in *Input) (*Result, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, canvas, quality); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	r := &Result{
		OriginalBytes:   int64(len(in.Data)),
		CompressedBytes: int64(len(data)),
		Quality:         quality,
		Data:            data,
		DataURI:         DataURI(MIMEJPEG, data),
		File:            &File{Name: outputName(in.Name), Type: MIMEJPEG, Data: data},
		Original:        in,
	}
	r.OriginalSize = FormatSize(r.OriginalBytes)
	r.CompressedSize = FormatSize(r.CompressedBytes)
	r.CompressedGeometry = GeometryOf(canvas.Bounds())

	if measure {
		decoded, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		r.SSIM = SSIM(canvas, decoded)
	}
	r.computeStats()
	return r, nil
}
