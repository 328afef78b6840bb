package protocol

import (
	"remote-agent/internal/types"
)

// SessionCreateRequest запрос на создание сессии
type SessionCreateRequest struct {
	ClientID     string             `json:"client_id"`
	Token        string             `json:"token,omitempty"`
	Capabilities types.Capabilities `json:"capabilities"`
	Quality      string             `json:"quality,omitempty"`
}

// SessionCreatedResponse ответ на успешное создание сессии
type SessionCreatedResponse struct {
	SessionID    string             `json:"session_id"`
	Quality      string             `json:"quality"`
	Capabilities types.Capabilities `json:"capabilities"`
}

// SessionDestroyRequest запрос на завершение сессии
type SessionDestroyRequest struct {
	SessionID string `json:"session_id"`
}

// QualitySetRequest запрос на смену качества потока
type QualitySetRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Quality   string `json:"quality"`
}

// FramerateSetRequest запрос на смену частоты кадров
type FramerateSetRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Framerate int    `json:"framerate"`
}

// ErrorPayload тело сообщения об ошибке
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OfferPayload тело сигнального сообщения webrtc.offer / webrtc.answer
type OfferPayload struct {
	ConnectionID string `json:"connection_id"`
	SDP          string `json:"sdp"`
}
