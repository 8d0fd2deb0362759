package upright

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegn"
	"github.com/pkg/errors"
)

// Decoder turns encoded bytes into a raster. Implementations may or may not
// apply the EXIF orientation while decoding; a RotationDetector finds out.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
}

// StdDecoder uses image/jpeg and image/png. It never applies EXIF
// orientation.
type StdDecoder struct{}

// Decode implements Decoder.
func (StdDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case isPNG(data):
		return png.Decode(bytes.NewReader(data))
	case isJPEG(data):
		return jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, errors.New("unknown image format")
	}
}

// JPEGNDecoder decodes JPEG with github.com/gen2brain/jpegn, which can
// apply the EXIF orientation itself. PNG input goes through image/png.
type JPEGNDecoder struct {
	AutoRotate bool
}

// Decode implements Decoder.
func (d JPEGNDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case isPNG(data):
		return png.Decode(bytes.NewReader(data))
	case isJPEG(data):
		return jpegn.Decode(bytes.NewReader(data), &jpegn.Options{AutoRotate: d.AutoRotate})
	default:
		return nil, errors.New("unknown image format")
	}
}

// ImagingDecoder decodes with github.com/disintegration/imaging.
// AutoOrient applies the EXIF orientation during decode.
type ImagingDecoder struct {
	AutoOrient bool
}

// Decode implements Decoder.
func (d ImagingDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isPNG(data) && !isJPEG(data) {
		return nil, errors.New("unknown image format")
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(d.AutoOrient))
}

func isJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}

func isPNG(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n"))
}
