package upright

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"runtime"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Version is the library version.
const Version = "1.0.0"

// MIMEJPEG is the only output format.
const MIMEJPEG = "image/jpeg"

// Defaults applied by DefaultOptions and to zero-valued Options fields.
const (
	DefaultQuality         = 0.8
	DefaultMaxWidth        = 800
	DefaultMaxHeight       = 1200
	DefaultMaxCanvasPixels = 64 << 20
)

// ProgressStage describes what the normalizer is currently doing.
type ProgressStage string

const (
	StageDecoding  ProgressStage = "decoding"
	StageDetecting ProgressStage = "detecting"
	StageRendering ProgressStage = "rendering"
	StageEncoding  ProgressStage = "encoding"
)

// ProgressFunc is called between pipeline stages.
// stage describes the upcoming operation, percent is 0.0–1.0.
// Return a non-nil error to abort the operation.
type ProgressFunc func(stage ProgressStage, percent float64) error

// Options configures a Normalizer.
type Options struct {
	// Quality is the encoder quality in (0, 1]. Default 0.8.
	Quality float64

	// MaxWidth bounds landscape images. Default 800, negative means unbounded.
	MaxWidth int

	// MaxHeight bounds portrait images. Default 1200, negative means unbounded.
	MaxHeight int

	// OutputFormat is the MIME type of the output. Only image/jpeg is supported.
	OutputFormat string

	// Background is composited under transparent pixels. Default white.
	Background color.Color

	// Decoder turns input bytes into pixels. Default StdDecoder.
	Decoder Decoder

	// Encoder produces the output bytes. Default JPEGEncoder.
	Encoder Encoder

	// Resampler scales the decoded image to the planned geometry.
	// Default KernelResampler with Catmull-Rom.
	Resampler Resampler

	// Detector reports whether Decoder already applies EXIF orientation
	// to the input's container format.
	// Default is the process-wide probe detector for Decoder.
	Detector RotationDetector

	// MaxCanvasPixels rejects renders larger than this many pixels.
	MaxCanvasPixels int

	// MeasureSSIM computes the structural similarity between the rendered
	// canvas and the encoded output. It costs one extra decode.
	MeasureSSIM bool

	// Workers bounds concurrent invocations on one Normalizer.
	// 0 means runtime.NumCPU().
	Workers int

	// Logger receives stage events. Default log.Log.
	Logger log.Interface

	// OnProgress is called between stages. Optional.
	OnProgress ProgressFunc
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Quality:         DefaultQuality,
		MaxWidth:        DefaultMaxWidth,
		MaxHeight:       DefaultMaxHeight,
		OutputFormat:    MIMEJPEG,
		Background:      color.White,
		Decoder:         StdDecoder{},
		Encoder:         JPEGEncoder{},
		Resampler:       DefaultResampler(),
		MaxCanvasPixels: DefaultMaxCanvasPixels,
	}
}

// withDefaults fills zero-valued fields.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Quality == 0 {
		o.Quality = def.Quality
	}
	if o.MaxWidth == 0 {
		o.MaxWidth = def.MaxWidth
	}
	if o.MaxHeight == 0 {
		o.MaxHeight = def.MaxHeight
	}
	if o.OutputFormat == "" {
		o.OutputFormat = def.OutputFormat
	}
	if o.Background == nil {
		o.Background = def.Background
	}
	if o.Decoder == nil {
		o.Decoder = def.Decoder
	}
	if o.Encoder == nil {
		o.Encoder = def.Encoder
	}
	if o.Resampler == nil {
		o.Resampler = def.Resampler
	}
	if o.Detector == nil {
		o.Detector = DetectorFor(o.Decoder)
	}
	if o.MaxCanvasPixels == 0 {
		o.MaxCanvasPixels = def.MaxCanvasPixels
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.Log
	}
	return o
}

// Validate reports configuration errors. Zero values are accepted since they
// are replaced by defaults.
func (o Options) Validate() error {
	if !(o.Quality >= 0 && o.Quality <= 1) {
		return validationf("quality %v out of range (0, 1]", o.Quality)
	}
	if o.OutputFormat != "" && normalizeMIME(o.OutputFormat) != MIMEJPEG {
		return validationf("unsupported output format %q", o.OutputFormat)
	}
	if o.MaxCanvasPixels < 0 {
		return validationf("negative canvas limit %d", o.MaxCanvasPixels)
	}
	return nil
}

func (o *Options) bounds() Bounds {
	return Bounds{MaxWidth: o.MaxWidth, MaxHeight: o.MaxHeight}
}

// reportProgress returns the context error or the progress callback error.
func (o *Options) reportProgress(ctx context.Context, stage ProgressStage, percent float64) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if o.OnProgress != nil {
		return o.OnProgress(stage, percent)
	}
	return nil
}

// Input is one submitted image.
type Input struct {
	// Data holds the raw encoded bytes.
	Data []byte
	// MIMEType must be image/jpeg, image/jpg or image/png.
	MIMEType string
	// Name is the original file name, reused for Result.File.
	Name string
}

// File is the encoded output packaged like an uploaded file.
type File struct {
	Name string
	Type string
	Data []byte
}

// Size returns the byte length of the file.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// Reader returns a fresh reader over the file contents.
func (f *File) Reader() *bytes.Reader { return bytes.NewReader(f.Data) }

// Result describes one normalized image.
type Result struct {
	// OriginalSize is the human-readable size of the input.
	OriginalSize string
	// CompressedSize is the human-readable size of Data.
	CompressedSize string

	OriginalBytes   int64
	CompressedBytes int64

	// OriginalGeometry is the decoded size before any transform.
	OriginalGeometry Geometry
	// PlannedGeometry is OriginalGeometry scaled into the bounds.
	PlannedGeometry Geometry
	// CompressedGeometry is the size of the encoded image.
	CompressedGeometry Geometry

	// Orientation is the EXIF tag found in the input.
	Orientation Orientation
	// AutoRotated reports that the decoder had already applied Orientation.
	AutoRotated bool
	// Quality is the encoder quality used.
	Quality float64

	// Data holds the encoded bytes.
	Data []byte
	// DataURI is Data as a base64 data URI.
	DataURI string
	// File is Data packaged with a name and MIME type.
	File *File
	// Original is the input this result was produced from.
	Original *Input

	// SSIM between the rendered canvas and the decoded output,
	// 0 unless Options.MeasureSSIM is set.
	SSIM float64
	// Ratio is OriginalBytes / CompressedBytes.
	Ratio float64
	// SavingsPercent is the percentage of bytes saved.
	SavingsPercent float64
}

// WriteTo writes the encoded bytes to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	if len(r.Data) == 0 {
		return 0, errors.New("upright: no encoded data available")
	}
	n, err := w.Write(r.Data)
	return int64(n), err
}

// Bytes returns the encoded bytes.
func (r *Result) Bytes() []byte {
	return r.Data
}

// String returns a one-line summary.
func (r *Result) String() string {
	ssim := ""
	if r.SSIM > 0 {
		ssim = fmt.Sprintf(" | SSIM: %.4f", r.SSIM)
	}
	return fmt.Sprintf(
		"Upright Result: %s | Q=%.2f | %s → %s | %s → %s%s | Saved: %.1f%%",
		r.Orientation, r.Quality,
		r.OriginalGeometry, r.CompressedGeometry,
		orDash(r.OriginalSize), orDash(r.CompressedSize),
		ssim, r.SavingsPercent,
	)
}

// computeStats fills Ratio and SavingsPercent from the byte counts.
func (r *Result) computeStats() {
	if r.OriginalBytes > 0 && r.CompressedBytes > 0 {
		r.Ratio = float64(r.OriginalBytes) / float64(r.CompressedBytes)
		r.SavingsPercent = (1 - float64(r.CompressedBytes)/float64(r.OriginalBytes)) * 100
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
