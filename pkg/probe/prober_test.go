package probe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/media"
)

func box(typ string, payload []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(8+len(payload)))
	b.WriteString(typ)
	b.Write(payload)
	return b.Bytes()
}

func mvhdV0(timescale, duration uint32) []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0}) // version + flags
	b.Write(make([]byte, 8))    // creation + modification
	_ = binary.Write(&b, binary.BigEndian, timescale)
	_ = binary.Write(&b, binary.BigEndian, duration)
	b.Write(make([]byte, 80))
	return box("mvhd", b.Bytes())
}

func mvhdV1(timescale uint32, duration uint64) []byte {
	var b bytes.Buffer
	b.Write([]byte{1, 0, 0, 0})
	b.Write(make([]byte, 16))
	_ = binary.Write(&b, binary.BigEndian, timescale)
	_ = binary.Write(&b, binary.BigEndian, duration)
	b.Write(make([]byte, 80))
	return box("mvhd", b.Bytes())
}

// shortMvhdBeforeTrak declares an mvhd holding only version and flags,
// followed by a box whose bytes would parse as a valid 5s header.
func shortMvhdBeforeTrak() []byte {
	var trak bytes.Buffer
	_ = binary.Write(&trak, binary.BigEndian, uint32(1000))
	_ = binary.Write(&trak, binary.BigEndian, uint32(5000))
	return append(box("mvhd", []byte{0, 0, 0, 0}), box("trak", trak.Bytes())...)
}

func mp4File(mvhd []byte) []byte {
	var b bytes.Buffer
	b.Write(box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2")))
	b.Write(box("free", nil))
	b.Write(box("moov", mvhd))
	b.Write(box("mdat", []byte("frames")))
	return b.Bytes()
}

func mp4Prober(t *testing.T) *Prober {
	t.Helper()
	p, err := New(Config{Backend: BackendMP4, Timeout: time.Second}, nil)
	require.NoError(t, err)
	return p
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendAuto, cfg.Backend)

	cfg = Config{Backend: " MP4 "}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMP4, cfg.Backend)

	cfg = Config{Backend: "vlc"}
	assert.Error(t, cfg.Validate())

	cfg = Config{Timeout: -time.Second}
	assert.Error(t, cfg.Validate())
}

func TestProber_MP4VersionZero(t *testing.T) {
	p := mp4Prober(t)

	res, err := p.Probe(context.Background(), media.FromBytes(mp4File(mvhdV0(1000, 12500)), ""))
	require.NoError(t, err)
	assert.True(t, res.Playable)
	assert.Equal(t, BackendMP4, res.Decoder)
	require.NotNil(t, res.DurationSeconds)
	assert.InDelta(t, 12.5, *res.DurationSeconds, 1e-9)
	assert.Empty(t, res.Advisory)
}

func TestProber_MP4VersionOne(t *testing.T) {
	p := mp4Prober(t)

	res, err := p.Probe(context.Background(), media.FromBytes(mp4File(mvhdV1(90000, 90000*3)), ""))
	require.NoError(t, err)
	require.NotNil(t, res.DurationSeconds)
	assert.InDelta(t, 3.0, *res.DurationSeconds, 1e-9)
}

func TestProber_MP4UnknownDuration(t *testing.T) {
	p := mp4Prober(t)

	res, err := p.Probe(context.Background(), media.FromBytes(mp4File(mvhdV0(600, 0xFFFFFFFF)), ""))
	require.NoError(t, err)
	assert.True(t, res.Playable)
	assert.Nil(t, res.DurationSeconds)
}

func TestProber_Undecodable(t *testing.T) {
	p := mp4Prober(t)

	tests := map[string][]byte{
		"garbage":        []byte("definitely not a video"),
		"no moov":        box("ftyp", []byte("isom")),
		"zero timescale": mp4File(mvhdV0(0, 10)),
		"short mvhd":     mp4File(shortMvhdBeforeTrak()),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := p.Probe(context.Background(), media.FromBytes(data, ""))
			require.Error(t, err)
			assert.True(t, job.IsDecode(err))
			assert.False(t, res.Playable)
			assert.Equal(t, NotPlayableAdvisory, res.Advisory)
		})
	}
}

func TestProber_ReleasedHandle(t *testing.T) {
	p := mp4Prober(t)
	h := media.FromBytes(mp4File(mvhdV0(1000, 1000)), "")
	require.NoError(t, h.Release())

	res, err := p.Probe(context.Background(), h)
	assert.True(t, job.IsDecode(err))
	assert.False(t, res.Playable)

	res, err = p.Probe(context.Background(), nil)
	assert.True(t, job.IsDecode(err))
	assert.False(t, res.Playable)
}

type blockingDecoder struct{ release chan struct{} }

func (blockingDecoder) Name() string { return "blocking" }

func (d blockingDecoder) Decode(ctx context.Context, h *media.Handle) (Result, error) {
	<-d.release
	return Result{}, nil
}

func TestProber_BoundedWait(t *testing.T) {
	dec := blockingDecoder{release: make(chan struct{})}
	defer close(dec.release)

	p := &Prober{decoders: []decoder{dec}, timeout: 20 * time.Millisecond, logger: zapNop()}

	start := time.Now()
	res, err := p.Probe(context.Background(), media.FromBytes([]byte("x"), ""))
	assert.Less(t, time.Since(start), time.Second)
	require.Error(t, err)
	assert.True(t, job.IsDecode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, res.Playable)
}

func TestParseFFProbe(t *testing.T) {
	res, err := parseFFProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"aac"},{"codec_type":"video","codec_name":"h264"}],"format":{"duration":"4.250000"}}`))
	require.NoError(t, err)
	assert.Equal(t, "h264", res.Codec)
	require.NotNil(t, res.DurationSeconds)
	assert.InDelta(t, 4.25, *res.DurationSeconds, 1e-9)

	res, err = parseFFProbe([]byte(`{"streams":[{"codec_type":"video","codec_name":"hevc"}],"format":{"duration":"N/A"}}`))
	require.NoError(t, err)
	assert.Nil(t, res.DurationSeconds)

	_, err = parseFFProbe([]byte(`{"streams":[{"codec_type":"audio"}]}`))
	assert.Error(t, err)

	_, err = parseFFProbe([]byte(`not json`))
	assert.Error(t, err)
}

func zapNop() *zap.Logger { return zap.NewNop() }
