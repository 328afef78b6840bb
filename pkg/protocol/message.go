// Package protocol описывает формат сообщений между агентом и зрителем.
package protocol

import (
	"encoding/json"
	"time"
)

// Version версия протокола, проставляется в каждое сообщение
const Version = "1.0"

// Каналы доставки сообщений
const (
	ChannelControl = "control"
	ChannelMedia   = "media"
)

// Типы входящих сообщений
const (
	TypeSessionCreate  = "session.create"
	TypeSessionDestroy = "session.destroy"
	TypeInputMouse     = "input.mouse"
	TypeInputKeyboard  = "input.keyboard"
	TypeInputTouch     = "input.touch"
	TypeInputWheel     = "input.wheel"
	TypeQualitySet     = "quality.set"
	TypeFramerateSet   = "framerate.set"
	TypeStatusRequest  = "status.request"
)

// Типы исходящих сообщений
const (
	TypeSessionCreated   = "session.created"
	TypeSessionDestroyed = "session.destroyed"
	TypeStatus           = "status"
	TypeFrame            = "frame"
	TypeError            = "error"
)

// Типы сигнальных сообщений WebRTC, обрабатываются транспортным слоем
const (
	TypeWebRTCOffer  = "webrtc.offer"
	TypeWebRTCAnswer = "webrtc.answer"
)

// Message конверт сообщения протокола
type Message struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp uint64          `json:"timestamp"`
	Sequence  *uint32         `json:"sequence,omitempty"`
	Version   string          `json:"version"`
}

// NewMessage собирает сообщение с текущим временем и версией протокола
func NewMessage(msgType, channel string, data any) (Message, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		raw = encoded
	}

	return Message{
		Type:      msgType,
		Channel:   channel,
		Data:      raw,
		Timestamp: uint64(time.Now().UnixMilli()),
		Version:   Version,
	}, nil
}

// DecodeData разбирает полезную нагрузку сообщения в указанную структуру
func (m *Message) DecodeData(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Encode сериализует сообщение для отправки
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode разбирает сырые байты в сообщение
func Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
