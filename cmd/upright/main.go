// Command upright normalizes a photo for upload: it corrects the EXIF
// orientation, scales it into bounds and re-encodes it as an opaque JPEG.
//
// Usage:
//
//	upright [flags] <input> [output]
//
// Examples:
//
//	upright photo.jpg
//	upright -quality 0.6 -max-width 1024 photo.jpg small.jpg
//	upright -decoder jpegn -encoder jpegli -json photo.jpg
//	upright -background '#000000' logo.png logo.jpg
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shamspias/upright"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("upright", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		quality    float64
		maxWidth   int
		maxHeight  int
		decoder    string
		encoder    string
		resampler  string
		background string
		autoRotate string
		dataURI    bool
		asJSON     bool
		ssim       bool
		verbose    bool
	)
	fs.Float64Var(&quality, "quality", upright.DefaultQuality, "JPEG quality in (0, 1]")
	fs.IntVar(&maxWidth, "max-width", upright.DefaultMaxWidth, "Maximum width of landscape images (-1 = no limit)")
	fs.IntVar(&maxHeight, "max-height", upright.DefaultMaxHeight, "Maximum height of portrait images (-1 = no limit)")
	fs.StringVar(&decoder, "decoder", "std", "Decoder: std|jpegn|imaging")
	fs.StringVar(&encoder, "encoder", "std", "Encoder: std|jpegli")
	fs.StringVar(&resampler, "resampler", "catmullrom", "Resampler: catmullrom|bilinear|lanczos|nfnt")
	fs.StringVar(&background, "background", "#ffffff", "Background for transparent pixels")
	fs.StringVar(&autoRotate, "auto-rotate", "auto", "Decoder auto-rotation: auto|yes|no")
	fs.BoolVar(&dataURI, "datauri", false, "Print the data URI instead of writing a file")
	fs.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	fs.BoolVar(&ssim, "ssim", false, "Measure SSIM of the output")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: upright [flags] <input> [output]")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	logger := &log.Logger{Handler: cli.New(stderr), Level: log.InfoLevel}
	if verbose {
		logger.Level = log.DebugLevel
	}

	opts := upright.DefaultOptions()
	opts.Quality = quality
	opts.MaxWidth = maxWidth
	opts.MaxHeight = maxHeight
	opts.MeasureSSIM = ssim
	opts.Logger = logger

	if err := configure(&opts, decoder, encoder, resampler, background, autoRotate); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	input := fs.Arg(0)
	output := fs.Arg(1)
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_upright.jpg"
	}

	result, err := upright.NormalizeFile(ctx, input, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if dataURI {
		fmt.Fprintln(stdout, result.DataURI)
		return 0
	}

	if err := os.WriteFile(output, result.Data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", errors.Wrapf(err, "write %q", output))
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newReport(output, result)); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	p := message.NewPrinter(language.English)
	fmt.Fprintln(stdout, result)
	p.Fprintf(stdout, "Wrote %s (%d bytes, was %d)\n", output, result.CompressedBytes, result.OriginalBytes)
	return 0
}

// configure maps the string flags onto opts.
func configure(opts *upright.Options, decoder, encoder, resampler, background, autoRotate string) error {
	switch strings.ToLower(decoder) {
	case "std":
		opts.Decoder = upright.StdDecoder{}
	case "jpegn":
		opts.Decoder = upright.JPEGNDecoder{AutoRotate: true}
	case "imaging":
		opts.Decoder = upright.ImagingDecoder{AutoOrient: true}
	default:
		return errors.Errorf("unknown decoder %q", decoder)
	}

	switch strings.ToLower(encoder) {
	case "std":
		opts.Encoder = upright.JPEGEncoder{}
	case "jpegli":
		opts.Encoder = upright.JPEGLIEncoder{}
	default:
		return errors.Errorf("unknown encoder %q", encoder)
	}

	switch strings.ToLower(resampler) {
	case "catmullrom":
		opts.Resampler = upright.KernelResampler{Kernel: draw.CatmullRom}
	case "bilinear":
		opts.Resampler = upright.KernelResampler{Kernel: draw.BiLinear}
	case "lanczos":
		opts.Resampler = upright.LanczosResampler{}
	case "nfnt":
		opts.Resampler = upright.NFNTResampler{Interp: resize.Lanczos3}
	default:
		return errors.Errorf("unknown resampler %q", resampler)
	}

	bg, err := parseHexColor(background)
	if err != nil {
		return err
	}
	opts.Background = bg

	switch strings.ToLower(autoRotate) {
	case "auto":
	case "yes":
		opts.Detector = upright.FixedDetector(true)
	case "no":
		opts.Detector = upright.FixedDetector(false)
	default:
		return errors.Errorf("unknown auto-rotate mode %q", autoRotate)
	}
	return nil
}

// parseHexColor parses #rgb or #rrggbb.
func parseHexColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, errors.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

type report struct {
	Output             string              `json:"output"`
	Orientation        upright.Orientation `json:"orientation"`
	AutoRotated        bool                `json:"auto_rotated"`
	Quality            float64             `json:"quality"`
	OriginalSize       string              `json:"original_size"`
	CompressedSize     string              `json:"compressed_size"`
	OriginalBytes      int64               `json:"original_bytes"`
	CompressedBytes    int64               `json:"compressed_bytes"`
	OriginalGeometry   upright.Geometry    `json:"original_geometry"`
	PlannedGeometry    upright.Geometry    `json:"planned_geometry"`
	CompressedGeometry upright.Geometry    `json:"compressed_geometry"`
	SSIM               float64             `json:"ssim,omitempty"`
	SavingsPercent     float64             `json:"savings_percent"`
}

func newReport(output string, r *upright.Result) report {
	return report{
		Output:             output,
		Orientation:        r.Orientation,
		AutoRotated:        r.AutoRotated,
		Quality:            r.Quality,
		OriginalSize:       r.OriginalSize,
		CompressedSize:     r.CompressedSize,
		OriginalBytes:      r.OriginalBytes,
		CompressedBytes:    r.CompressedBytes,
		OriginalGeometry:   r.OriginalGeometry,
		PlannedGeometry:    r.PlannedGeometry,
		CompressedGeometry: r.CompressedGeometry,
		SSIM:               r.SSIM,
		SavingsPercent:     r.SavingsPercent,
	}
}
