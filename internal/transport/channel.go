// Package transport управляет соединениями со зрителями и доставкой
// кадров и сообщений по WebRTC и WebSocket.
package transport

import (
	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

// Channel одно живое соединение со зрителем. Управляющие сообщения
// доставляются надежно и по порядку, кадры по принципу best effort.
type Channel interface {
	// SendMessage ставит управляющее сообщение в очередь отправки
	SendMessage(msg protocol.Message) error
	// SendFrame ставит кадр в очередь отправки; возвращает true,
	// если из-за переполнения очереди какой-то кадр был потерян
	SendFrame(frame *types.EncodedFrame) bool
	// Close закрывает соединение; повторные вызовы безопасны
	Close() error
}

// offerFrame кладет кадр в очередь ограниченного размера.
// При переполнении либо вытесняет самый старый кадр, либо теряет
// новый. Возвращает true, если какой-то кадр был потерян.
func offerFrame(queue chan *types.EncodedFrame, frame *types.EncodedFrame, dropOldest bool) bool {
	select {
	case queue <- frame:
		return false
	default:
	}

	if !dropOldest {
		return true
	}

	select {
	case <-queue:
	default:
	}
	select {
	case queue <- frame:
	default:
	}
	return true
}
