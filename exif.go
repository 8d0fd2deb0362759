package upright

import (
	"bytes"
	"fmt"

	"github.com/bep/imagemeta"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation describes an EXIF orientation tag value.
type Orientation int

const (
	OrientNormal      Orientation = 1
	OrientFlipH       Orientation = 2
	OrientRotate180   Orientation = 3
	OrientFlipV       Orientation = 4 // flip H + rotate 180
	OrientTranspose   Orientation = 5 // flip H + rotate 90 CCW
	OrientRotate90CW  Orientation = 6
	OrientTransverse  Orientation = 7 // flip H + rotate 90 CW
	OrientRotate270CW Orientation = 8
)

// Valid reports whether o is one of the eight EXIF values.
func (o Orientation) Valid() bool {
	return o >= OrientNormal && o <= OrientRotate270CW
}

// SwapsAxes reports whether correcting o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientTranspose && o <= OrientRotate270CW
}

func (o Orientation) String() string {
	switch o {
	case OrientNormal:
		return "Normal"
	case OrientFlipH:
		return "FlipH"
	case OrientRotate180:
		return "Rotate180"
	case OrientFlipV:
		return "FlipV"
	case OrientTranspose:
		return "Transpose"
	case OrientRotate90CW:
		return "Rotate90CW"
	case OrientTransverse:
		return "Transverse"
	case OrientRotate270CW:
		return "Rotate270CW"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// ReadOrientation returns the EXIF orientation stored in data.
// It never fails: a missing, corrupt or out-of-range tag, or a container
// without EXIF support, yields OrientNormal.
func ReadOrientation(data []byte) Orientation {
	format, ok := sniffFormat(data)
	if !ok {
		return OrientNormal
	}

	if o, err := readImagemeta(data, format); err == nil && o.Valid() {
		return o
	}

	// goexif only understands JPEG and bare TIFF streams.
	if format == imagemeta.JPEG || format == imagemeta.TIFF {
		if o := readGoexif(data); o.Valid() {
			return o
		}
	}
	return OrientNormal
}

// sniffFormat maps magic bytes to an imagemeta format.
func sniffFormat(data []byte) (imagemeta.ImageFormat, bool) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return imagemeta.JPEG, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return imagemeta.PNG, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return imagemeta.TIFF, true
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return imagemeta.WebP, true
	}
	return imagemeta.ImageFormatAuto, false
}

func readImagemeta(data []byte, format imagemeta.ImageFormat) (Orientation, error) {
	var orient Orientation
	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		HandleTag: func(ti imagemeta.TagInfo) error {
			if ti.Tag != "Orientation" {
				return nil
			}
			orient = orientationValue(ti.Value)
			return imagemeta.ErrStopWalking
		},
	})
	return orient, err
}

func readGoexif(data []byte) Orientation {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return OrientNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientNormal
	}
	v, err := tag.Int(0)
	if err != nil {
		return OrientNormal
	}
	return Orientation(v)
}

func orientationValue(v any) Orientation {
	switch n := v.(type) {
	case uint16:
		return Orientation(n)
	case uint32:
		return Orientation(n)
	case uint8:
		return Orientation(n)
	case int:
		return Orientation(n)
	case int64:
		return Orientation(n)
	}
	return 0
}
