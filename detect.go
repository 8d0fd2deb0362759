package upright

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
)

// RotationDetector reports whether a decoder applies EXIF orientation on
// its own for input of the given MIME type. When it does, the render stage
// must not correct again.
type RotationDetector interface {
	AutoRotates(ctx context.Context, mimeType string) bool
}

// FixedDetector is a RotationDetector with a known answer for every format.
type FixedDetector bool

// AutoRotates implements RotationDetector.
func (f FixedDetector) AutoRotates(context.Context, string) bool { return bool(f) }

// probeJPEG is a 2x1 baseline JPEG tagged with orientation 6. A decoder that
// honours the tag returns a 1x2 image.
var probeJPEG = mustBase64("" +
	"/9j/4QAiRXhpZgAATU0AKgAAAAgAAQESAAMAAAABAAYAAAAAAAD/2wCEAAEBAQEBAQEBAQEB" +
	"AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEB" +
	"AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEB" +
	"AQEBAQEBAQEBAf/AABEIAAEAAgMBEQACEQEDEQH/xABKAAEAAAAAAAAAAAAAAAAAAAALEAEA" +
	"AAAAAAAAAAAAAAAAAAAAAQEAAAAAAAAAAAAAAAAAAAAAEQEAAAAAAAAAAAAAAAAAAAAA/9oA" +
	"DAMBAAIRAxEAPwA/8H//2Q==")

// probePNG is the same probe as a PNG carrying an eXIf chunk.
var probePNG = mustProbePNG()

func mustBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func mustProbePNG() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 1))); err != nil {
		panic(err)
	}
	return withPNGChunk(buf.Bytes(), "eXIf", orientationTIFF(OrientRotate90CW))
}

// orientationTIFF returns a big-endian TIFF stream whose IFD0 holds only
// the Orientation tag.
func orientationTIFF(o Orientation) []byte {
	b := make([]byte, 0, 26)
	b = append(b, "MM\x00\x2a"...)
	b = binary.BigEndian.AppendUint32(b, 8) // IFD0 offset
	b = binary.BigEndian.AppendUint16(b, 1) // entry count
	b = binary.BigEndian.AppendUint16(b, 0x0112)
	b = binary.BigEndian.AppendUint16(b, 3) // SHORT
	b = binary.BigEndian.AppendUint32(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(o))
	b = binary.BigEndian.AppendUint16(b, 0)
	return binary.BigEndian.AppendUint32(b, 0) // no next IFD
}

// withPNGChunk inserts a chunk right after IHDR.
func withPNGChunk(data []byte, typ string, payload []byte) []byte {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if !isPNG(data) || len(data) < ihdrEnd {
		return data
	}
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	chunk = append(chunk, typ...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, data[ihdrEnd:]...)
}

// probes maps each input MIME type to its probe image.
var probes = map[string][]byte{
	MIMEJPEG:    probeJPEG,
	"image/png": probePNG,
}

const (
	probeUnknown int32 = iota
	probeNo
	probeYes
)

type probeState struct {
	data  []byte
	state atomic.Int32
}

// ProbeDetector decodes a tagged probe image once per input format and
// remembers the outcome. A decoder may honour the tag in one container and
// ignore it in another, so JPEG and PNG are answered separately.
// Concurrent first calls may each probe; they agree on the result because
// the input is constant. A failed decode counts as "does not auto-rotate",
// as does any format without a probe.
type ProbeDetector struct {
	dec    Decoder
	probes map[string]*probeState
}

// NewProbeDetector returns an unresolved detector for dec.
func NewProbeDetector(dec Decoder) *ProbeDetector {
	p := &ProbeDetector{dec: dec, probes: make(map[string]*probeState, len(probes))}
	for mt, data := range probes {
		p.probes[mt] = &probeState{data: data}
	}
	return p
}

// AutoRotates implements RotationDetector.
func (p *ProbeDetector) AutoRotates(ctx context.Context, mimeType string) bool {
	ps, ok := p.probes[normalizeMIME(mimeType)]
	if !ok {
		return false
	}
	if v, ok := ps.resolved(); ok {
		return v
	}

	img, err := p.dec.Decode(ctx, ps.data)
	if err != nil && ctx.Err() != nil {
		// Abandoned, try again next time.
		return false
	}

	result := probeNo
	if err == nil {
		b := img.Bounds()
		if b.Dx() == 1 && b.Dy() == 2 {
			result = probeYes
		}
	}
	ps.state.CompareAndSwap(probeUnknown, result)
	return ps.state.Load() == probeYes
}

// Resolved returns the memoized answer for mimeType, if any.
func (p *ProbeDetector) Resolved(mimeType string) (autoRotates, ok bool) {
	ps, found := p.probes[normalizeMIME(mimeType)]
	if !found {
		return false, false
	}
	return ps.resolved()
}

func (ps *probeState) resolved() (bool, bool) {
	switch ps.state.Load() {
	case probeYes:
		return true, true
	case probeNo:
		return false, true
	}
	return false, false
}

var detectors = struct {
	sync.Mutex
	m map[Decoder]*ProbeDetector
}{m: make(map[Decoder]*ProbeDetector)}

// DetectorFor returns the process-wide detector for dec, creating it on
// first use. Decoders whose dynamic value is not hashable get a private one.
func DetectorFor(dec Decoder) (d *ProbeDetector) {
	if dec == nil {
		dec = StdDecoder{}
	}
	defer func() {
		// Hashing a func, map or slice held anywhere inside dec panics.
		if recover() != nil {
			d = NewProbeDetector(dec)
		}
	}()

	detectors.Lock()
	defer detectors.Unlock()
	d, ok := detectors.m[dec]
	if !ok {
		d = NewProbeDetector(dec)
		detectors.m[dec] = d
	}
	return d
}
