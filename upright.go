// Package upright normalizes user-submitted photographs before upload.
//
// A photo straight from a phone camera is usually stored sideways with an
// EXIF tag that tells viewers how to turn it. Some decoders honour that tag,
// others ignore it. Upright reads the tag, finds out whether the configured
// decoder has already applied it, and re-renders the image so that it is
// corrected exactly once:
//
//   - Orientation: EXIF tag extraction from JPEG, PNG, TIFF and WebP containers
//   - Planning: aspect-preserving downscale into configurable bounds
//   - Quirk detection: a memoized probe of the decoder's auto-rotation behaviour
//   - Rendering: scale, flatten transparency onto an opaque background, rotate/flip
//   - Encoding: JPEG at a caller-controlled quality with size labels and a data URI
//
// Invocations on one Normalizer run on a bounded worker pool.
package upright

import (
	"context"
	"os"

	"github.com/alitto/pond/v2"
	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Normalizer runs the normalization pipeline on a bounded pool of workers.
// It is safe for concurrent use.
type Normalizer struct {
	opts Options
	pool pond.ResultPool[*Result]
}

// New validates opts, fills defaults and starts the worker pool.
func New(opts Options) (*Normalizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Normalizer{
		opts: opts,
		pool: pond.NewResultPool[*Result](opts.Workers),
	}, nil
}

// Close waits for running invocations and stops the pool.
func (n *Normalizer) Close() {
	n.pool.StopAndWait()
}

// Submit validates in and queues it. Validation errors are returned
// immediately; everything else is reported through the returned task.
func (n *Normalizer) Submit(ctx context.Context, in Input) (pond.Result[*Result], error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	return n.pool.SubmitErr(func() (*Result, error) {
		return n.run(ctx, &in)
	}), nil
}

// Normalize runs one invocation and waits for it. If ctx is done first,
// ctx.Err() is returned right away, but the pool task keeps its worker and
// buffers until it reaches its next stage boundary. Close waits for it.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*Result, error) {
	task, err := n.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-task.Done():
	}
	return task.Wait()
}

// Normalize runs one invocation on a transient Normalizer.
func Normalize(ctx context.Context, in Input, opts Options) (*Result, error) {
	n, err := New(opts)
	if err != nil {
		return nil, err
	}
	defer n.Close()
	return n.Normalize(ctx, in)
}

// NormalizeFile reads path and normalizes it. The MIME type comes from the
// file extension, falling back to the leading magic bytes.
func NormalizeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "upright: read %q", path)
	}
	mimeType := MIMETypeFor(path)
	if mimeType == "" {
		mimeType = sniffMIME(data)
	}
	return Normalize(ctx, Input{Data: data, MIMEType: mimeType, Name: path}, opts)
}

func sniffMIME(data []byte) string {
	switch {
	case isJPEG(data):
		return MIMEJPEG
	case isPNG(data):
		return "image/png"
	}
	return ""
}

// run is the pipeline body executed on a pool worker.
func (n *Normalizer) run(ctx context.Context, in *Input) (*Result, error) {
	opts := &n.opts
	logger := opts.Logger.WithFields(log.Fields{
		"name":  in.Name,
		"type":  in.MIMEType,
		"bytes": len(in.Data),
	})

	if err := opts.reportProgress(ctx, StageDecoding, 0); err != nil {
		return nil, err
	}

	// The tag is independent of the pixels; read it while decoding.
	orientc := make(chan Orientation, 1)
	go func() { orientc <- ReadOrientation(in.Data) }()

	src, err := opts.Decoder.Decode(ctx, in.Data)
	orient := <-orientc
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageError(ErrDecode, err)
	}
	natural := GeometryOf(src.Bounds())
	if natural.Pixels() <= 0 {
		return nil, stageError(ErrDecode, errors.Errorf("empty image %s", natural))
	}
	plan := Plan(natural, opts.bounds())
	logger.WithFields(log.Fields{
		"orientation": orient,
		"natural":     natural,
		"plan":        plan,
	}).Debug("decoded")

	if err := opts.reportProgress(ctx, StageDetecting, 0.25); err != nil {
		return nil, err
	}
	// Decoders dispatch on content, so the container decides the quirk.
	format := sniffMIME(in.Data)
	if format == "" {
		format = normalizeMIME(in.MIMEType)
	}
	autoRotated := opts.Detector.AutoRotates(ctx, format)
	logger.WithFields(log.Fields{
		"format":       format,
		"auto_rotated": autoRotated,
	}).Debug("detected")

	if err := opts.reportProgress(ctx, StageRendering, 0.5); err != nil {
		return nil, err
	}
	canvas, err := Render(ctx, src, orient, plan, autoRotated, RenderOptions{
		Background:      opts.Background,
		Resampler:       opts.Resampler,
		MaxCanvasPixels: opts.MaxCanvasPixels,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageError(ErrRender, err)
	}

	if err := opts.reportProgress(ctx, StageEncoding, 0.75); err != nil {
		return nil, err
	}
	result, err := encodeCanvas(canvas, opts.Encoder, opts.Quality, opts.MeasureSSIM, in)
	if err != nil {
		return nil, stageError(ErrEncode, err)
	}
	result.OriginalGeometry = natural
	result.PlannedGeometry = plan
	result.Orientation = orient
	result.AutoRotated = autoRotated

	if err := opts.reportProgress(ctx, StageEncoding, 1.0); err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{
		"geometry":   result.CompressedGeometry,
		"compressed": result.CompressedBytes,
		"quality":    result.Quality,
	}).Info("normalized")
	return result, nil
}
