// Package encoder преобразует сырые кадры в кадры для отправки.
package encoder

import (
	"bytes"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// keyframeSeconds интервал ключевых кадров в секундах
const keyframeSeconds = 2

// Encoder кодирует кадры: конвертация в YUV420, разметка ключевых
// кадров и опциональное сжатие. Вызывается из одной горутины конвейера,
// мьютекс защищает только перенастройку качества и частоты.
type Encoder struct {
	logger *zap.Logger

	mu          sync.Mutex
	codec       types.VideoCodec
	quality     types.Quality
	framerate   int
	bitrate     int
	compress    bool
	initialized bool

	frameCount   uint64
	lastKeyframe uint64
}

// NewEncoder создает кодировщик по конфигурации захвата
func NewEncoder(cfg config.CaptureConfig, compress bool, logger *zap.Logger) *Encoder {
	return &Encoder{
		logger:    logger,
		codec:     cfg.Codec,
		quality:   cfg.Quality,
		framerate: cfg.Framerate,
		bitrate:   cfg.Quality.Bitrate(),
		compress:  compress,
	}
}

// Init подготавливает кодировщик к работе
func (e *Encoder) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.codec {
	case types.CodecH264, types.CodecVP8, types.CodecVP9, types.CodecAV1:
	default:
		return agenterr.Newf(agenterr.KindEncoding, "unsupported codec: %s", e.codec)
	}

	e.initialized = true
	e.logger.Info("Encoder initialized",
		zap.String("codec", string(e.codec)),
		zap.String("quality", e.quality.String()),
		zap.String("bitrate", types.FormatBitrate(e.bitrate)))

	return nil
}

// Encode кодирует один кадр. Кадр становится ключевым, если с прошлого
// ключевого прошло framerate*2 кадров (раз в 2 секунды потока).
func (e *Encoder) Encode(raw *types.RawFrame) (*types.EncodedFrame, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil, agenterr.New(agenterr.KindEncoding, "encoder is not initialized")
	}
	codec := e.codec
	quality := e.quality
	interval := uint64(e.framerate * keyframeSeconds)
	compress := e.compress

	keyframe := e.frameCount == 0 || e.frameCount-e.lastKeyframe >= interval
	if keyframe {
		e.lastKeyframe = e.frameCount
	}
	e.frameCount++
	e.mu.Unlock()

	payload, err := toYUV420(raw)
	if err != nil {
		return nil, err
	}

	compressed := false
	if compress {
		deflated, derr := deflate(payload)
		if derr != nil {
			return nil, agenterr.Wrap(agenterr.KindEncoding, "compress frame", derr)
		}
		payload = deflated
		compressed = true
	}

	return &types.EncodedFrame{
		ID:         types.NewID(),
		Timestamp:  uint64(time.Now().UnixMilli()),
		Width:      raw.Width,
		Height:     raw.Height,
		Codec:      codec,
		Quality:    quality,
		Keyframe:   keyframe,
		Compressed: compressed,
		Payload:    payload,
	}, nil
}

// SetQuality перенастраивает качество; действует со следующего кадра
func (e *Encoder) SetQuality(q types.Quality) {
	e.mu.Lock()
	e.quality = q
	e.bitrate = q.Bitrate()
	e.mu.Unlock()

	e.logger.Info("Encoder quality changed",
		zap.String("quality", q.String()),
		zap.String("bitrate", types.FormatBitrate(q.Bitrate())))
}

// SetFramerate перенастраивает частоту кадров для интервала ключевых кадров
func (e *Encoder) SetFramerate(framerate int) {
	e.mu.Lock()
	e.framerate = framerate
	e.mu.Unlock()
}

// Bitrate возвращает текущий целевой битрейт
func (e *Encoder) Bitrate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bitrate
}

// Quality возвращает текущее качество
func (e *Encoder) Quality() types.Quality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
