package encoder

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

func testEncoderConfig() config.CaptureConfig {
	return config.CaptureConfig{
		Quality:   types.QualityMedium,
		Framerate: 10,
		Codec:     types.CodecH264,
		Width:     64,
		Height:    48,
	}
}

func testRawFrame(w, h int) *types.RawFrame {
	data := make([]byte, w*h*4)
	for i := range data {
		data[i] = byte(i)
	}
	return &types.RawFrame{
		Width:      w,
		Height:     h,
		Format:     types.PixelFormatBGRA,
		Data:       data,
		DisplayID:  "display-0",
		CapturedAt: time.Now(),
	}
}

func TestEncodeRequiresInit(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())

	_, err := e.Encode(testRawFrame(64, 48))
	require.Error(t, err)
	assert.Equal(t, agenterr.KindEncoding, agenterr.KindOf(err))
}

func TestInitRejectsUnknownCodec(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.Codec = types.VideoCodec("mjpeg")

	e := NewEncoder(cfg, false, zap.NewNop())
	err := e.Init()
	require.Error(t, err)
	assert.Equal(t, agenterr.KindEncoding, agenterr.KindOf(err))
}

func TestEncodeProducesYUV420(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, e.Init())

	frame, err := e.Encode(testRawFrame(64, 48))
	require.NoError(t, err)

	assert.NotEmpty(t, frame.ID)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 48, frame.Height)
	assert.Equal(t, types.CodecH264, frame.Codec)
	assert.Equal(t, types.QualityMedium, frame.Quality)
	assert.False(t, frame.Compressed)
	// Y-плоскость w*h плюс две хромаплоскости в четверть размера
	assert.Len(t, frame.Payload, 64*48+2*(32*24))
}

func TestEncodeOddDimensions(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, e.Init())

	frame, err := e.Encode(testRawFrame(63, 47))
	require.NoError(t, err)
	assert.Len(t, frame.Payload, 63*47+2*(32*24))
}

func TestKeyframeInterval(t *testing.T) {
	// framerate 10: ключевые кадры на 0, 20, 40...
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, e.Init())

	var keyframes []int
	for i := 0; i < 45; i++ {
		frame, err := e.Encode(testRawFrame(8, 8))
		require.NoError(t, err)
		if frame.Keyframe {
			keyframes = append(keyframes, i)
		}
	}

	assert.Equal(t, []int{0, 20, 40}, keyframes)
}

func TestSetQuality(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, e.Init())

	assert.Equal(t, types.QualityMedium.Bitrate(), e.Bitrate())

	e.SetQuality(types.QualityUltra)
	assert.Equal(t, types.QualityUltra, e.Quality())
	assert.Equal(t, types.QualityUltra.Bitrate(), e.Bitrate())

	frame, err := e.Encode(testRawFrame(8, 8))
	require.NoError(t, err)
	assert.Equal(t, types.QualityUltra, frame.Quality)
}

func TestEncodeCompressed(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), true, zap.NewNop())
	require.NoError(t, e.Init())

	raw := testRawFrame(64, 48)
	frame, err := e.Encode(raw)
	require.NoError(t, err)
	require.True(t, frame.Compressed)

	r := flate.NewReader(bytes.NewReader(frame.Payload))
	inflated, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, inflated, 64*48+2*(32*24))

	plain := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, plain.Init())
	reference, err := plain.Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, reference.Payload, inflated)
}

func TestEncodeRejectsShortBuffer(t *testing.T) {
	e := NewEncoder(testEncoderConfig(), false, zap.NewNop())
	require.NoError(t, e.Init())

	raw := testRawFrame(64, 48)
	raw.Data = raw.Data[:16]

	_, err := e.Encode(raw)
	assert.Error(t, err)
}
