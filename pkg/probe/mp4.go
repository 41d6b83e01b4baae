package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/3leaps/vr180/pkg/media"
)

// maxBoxDepth bounds recursion into container boxes.
const maxBoxDepth = 4

var errNoMovieHeader = errors.New("mp4: movie header not found")

// mp4Decoder reads the ISO-BMFF movie header (moov/mvhd) for timescale and
// duration.
type mp4Decoder struct{}

func (mp4Decoder) Name() string { return BackendMP4 }

func (mp4Decoder) Decode(ctx context.Context, h *media.Handle) (Result, error) {
	rc, err := h.Open()
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rc.Close() }()

	end, err := rc.Seek(0, io.SeekEnd)
	if err != nil {
		return Result{}, err
	}
	return decodeMP4(ctx, rc, 0, end, 0)
}

type boxHeader struct {
	typ        string
	start      int64
	headerSize int64
	size       int64
}

func readBoxHeader(r io.ReadSeeker, offset, limit int64) (boxHeader, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return boxHeader{}, err
	}
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:8]); err != nil {
		return boxHeader{}, err
	}

	bh := boxHeader{
		typ:        string(hdr[4:8]),
		start:      offset,
		headerSize: 8,
		size:       int64(binary.BigEndian.Uint32(hdr[:4])),
	}
	switch bh.size {
	case 0:
		bh.size = limit - offset
	case 1:
		if _, err := io.ReadFull(r, hdr[8:16]); err != nil {
			return boxHeader{}, err
		}
		bh.size = int64(binary.BigEndian.Uint64(hdr[8:16]))
		bh.headerSize = 16
	}
	if bh.size < bh.headerSize || offset+bh.size > limit {
		return boxHeader{}, fmt.Errorf("mp4: box %q has invalid size %d", bh.typ, bh.size)
	}
	return bh, nil
}

func decodeMP4(ctx context.Context, r io.ReadSeeker, offset, limit int64, depth int) (Result, error) {
	if depth > maxBoxDepth {
		return Result{}, errNoMovieHeader
	}
	for offset < limit {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		bh, err := readBoxHeader(r, offset, limit)
		if err != nil {
			return Result{}, err
		}
		switch bh.typ {
		case "moov":
			return decodeMP4(ctx, r, bh.start+bh.headerSize, bh.start+bh.size, depth+1)
		case "mvhd":
			return readMovieHeader(r, bh)
		}
		offset = bh.start + bh.size
	}
	return Result{}, errNoMovieHeader
}

func readMovieHeader(r io.Reader, bh boxHeader) (Result, error) {
	r = io.LimitReader(r, bh.size-bh.headerSize)

	var vf [4]byte
	if _, err := io.ReadFull(r, vf[:]); err != nil {
		return Result{}, truncatedMovieHeader(err)
	}

	var timescale uint32
	var duration uint64
	unknown := false

	switch vf[0] {
	case 0:
		var body [16]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Result{}, truncatedMovieHeader(err)
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		d := binary.BigEndian.Uint32(body[12:16])
		duration = uint64(d)
		unknown = d == 0xFFFFFFFF
	case 1:
		var body [28]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Result{}, truncatedMovieHeader(err)
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		duration = binary.BigEndian.Uint64(body[20:28])
		unknown = duration == 0xFFFFFFFFFFFFFFFF
	default:
		return Result{}, fmt.Errorf("mp4: unsupported mvhd version %d", vf[0])
	}

	if timescale == 0 {
		return Result{}, errors.New("mp4: mvhd timescale is zero")
	}

	var res Result
	if !unknown {
		secs := float64(duration) / float64(timescale)
		res.DurationSeconds = &secs
	}
	return res, nil
}

func truncatedMovieHeader(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("mp4: mvhd box is truncated: %w", err)
	}
	return err
}
