package agent

import (
	"go.uber.org/zap"

	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

// route обрабатывает входящее сообщение зрителя. Неизвестные типы
// логируются и пропускаются: новые клиенты не должны ломать агента.
func (a *Agent) route(connID string, msg protocol.Message) {
	a.touchSender(connID, len(msg.Data))

	switch msg.Type {
	case protocol.TypeSessionCreate:
		a.handleSessionCreate(connID, msg)
	case protocol.TypeSessionDestroy:
		a.handleSessionDestroy(connID, msg)
	case protocol.TypeInputMouse:
		a.handleInputMouse(connID, msg)
	case protocol.TypeInputKeyboard:
		a.handleInputKeyboard(connID, msg)
	case protocol.TypeInputTouch:
		a.handleInputTouch(connID, msg)
	case protocol.TypeInputWheel:
		a.handleInputWheel(connID, msg)
	case protocol.TypeQualitySet:
		a.handleQualitySet(connID, msg)
	case protocol.TypeFramerateSet:
		a.handleFramerateSet(connID, msg)
	case protocol.TypeStatusRequest:
		a.handleStatusRequest(connID)
	default:
		a.logger.Warn("Unrecognized message type",
			zap.String("type", msg.Type),
			zap.String("connection_id", connID))
	}
}

// touchSender продлевает активность сессий клиента-отправителя
func (a *Agent) touchSender(connID string, receivedBytes int) {
	a.tracker.AddBytesReceived(receivedBytes)
	if info, ok := a.transport.Get(connID); ok {
		a.sessions.TouchByClient(info.ClientID, receivedBytes)
	}
}

// sendError отправляет зрителю сообщение об ошибке
func (a *Agent) sendError(connID, code, message string) {
	msg, err := protocol.NewMessage(protocol.TypeError, protocol.ChannelControl, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	if err := a.transport.Send(connID, msg); err != nil {
		a.logger.Warn("Send error message failed", zap.Error(err))
	}
}

func (a *Agent) reply(connID, msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, protocol.ChannelControl, payload)
	if err != nil {
		a.logger.Error("Encode reply failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := a.transport.Send(connID, msg); err != nil {
		a.logger.Warn("Send reply failed", zap.String("type", msgType), zap.Error(err))
	}
}

// handleSessionCreate создает сессию. При включенной аутентификации
// неверный токен закрывает соединение без создания сессии.
func (a *Agent) handleSessionCreate(connID string, msg protocol.Message) {
	var req protocol.SessionCreateRequest
	if err := msg.DecodeData(&req); err != nil {
		a.sendError(connID, "bad_request", "malformed session.create payload")
		return
	}

	if a.cfg.Auth.RequireAuth && req.Token != a.cfg.Auth.Token {
		a.logger.Warn("Session rejected: invalid token",
			zap.String("client_id", req.ClientID),
			zap.String("connection_id", connID))
		a.sendError(connID, "auth_failed", "invalid token")
		a.transport.CloseConnection(connID)
		return
	}

	quality := a.cfg.Capture.Quality
	if req.Quality != "" {
		parsed, err := types.ParseQuality(req.Quality)
		if err != nil {
			a.sendError(connID, "bad_request", err.Error())
			return
		}
		quality = parsed
	}

	sess := a.sessions.Create(req.ClientID, req.Capabilities, quality)
	a.tracker.SetSessions(a.sessions.Count())

	a.reply(connID, protocol.TypeSessionCreated, protocol.SessionCreatedResponse{
		SessionID:    sess.ID,
		Quality:      sess.Quality.String(),
		Capabilities: sess.Capabilities,
	})

	// Для зрителя с видео пробуем поднять WebRTC; его отказ не фатален,
	// кадры продолжат идти по сигнальному WebSocket
	if a.cfg.Transport.WebRTCEnabled && req.Capabilities.Video {
		a.offerWebRTC(connID, req.ClientID)
	}
}

// offerWebRTC создает WebRTC соединение и шлет зрителю offer
func (a *Agent) offerWebRTC(connID, clientID string) {
	rtcID, sdp, err := a.transport.CreateWebRTCConnection(clientID)
	if err != nil {
		a.logger.Warn("WebRTC connection setup failed, staying on websocket",
			zap.String("client_id", clientID),
			zap.Error(err))
		return
	}

	a.reply(connID, protocol.TypeWebRTCOffer, protocol.OfferPayload{
		ConnectionID: rtcID,
		SDP:          sdp,
	})
}

// handleSessionDestroy завершает сессию; повторное завершение
// не считается ошибкой
func (a *Agent) handleSessionDestroy(connID string, msg protocol.Message) {
	var req protocol.SessionDestroyRequest
	if err := msg.DecodeData(&req); err != nil {
		a.sendError(connID, "bad_request", "malformed session.destroy payload")
		return
	}

	a.sessions.Destroy(req.SessionID)
	a.tracker.SetSessions(a.sessions.Count())
	a.reply(connID, protocol.TypeSessionDestroyed, protocol.SessionDestroyRequest{SessionID: req.SessionID})
}

func (a *Agent) handleInputMouse(connID string, msg protocol.Message) {
	var ev protocol.MouseEvent
	if err := msg.DecodeData(&ev); err != nil {
		a.sendError(connID, "bad_request", "malformed mouse event")
		return
	}
	if err := a.input.Mouse(ev); err != nil {
		a.sendError(connID, "input_rejected", err.Error())
	}
}

func (a *Agent) handleInputKeyboard(connID string, msg protocol.Message) {
	var ev protocol.KeyboardEvent
	if err := msg.DecodeData(&ev); err != nil {
		a.sendError(connID, "bad_request", "malformed keyboard event")
		return
	}
	if err := a.input.Keyboard(ev); err != nil {
		a.sendError(connID, "input_rejected", err.Error())
	}
}

func (a *Agent) handleInputTouch(connID string, msg protocol.Message) {
	var ev protocol.TouchEvent
	if err := msg.DecodeData(&ev); err != nil {
		a.sendError(connID, "bad_request", "malformed touch event")
		return
	}
	if err := a.input.Touch(ev); err != nil {
		a.sendError(connID, "input_rejected", err.Error())
	}
}

func (a *Agent) handleInputWheel(connID string, msg protocol.Message) {
	var ev protocol.WheelEvent
	if err := msg.DecodeData(&ev); err != nil {
		a.sendError(connID, "bad_request", "malformed wheel event")
		return
	}
	if err := a.input.Wheel(ev); err != nil {
		a.sendError(connID, "input_rejected", err.Error())
	}
}

// handleQualitySet меняет качество потока на лету
func (a *Agent) handleQualitySet(connID string, msg protocol.Message) {
	var req protocol.QualitySetRequest
	if err := msg.DecodeData(&req); err != nil {
		a.sendError(connID, "bad_request", "malformed quality.set payload")
		return
	}

	quality, err := types.ParseQuality(req.Quality)
	if err != nil {
		a.sendError(connID, "bad_request", err.Error())
		return
	}

	a.encoder.SetQuality(quality)
	a.tracker.SetBitrate(quality.Bitrate())

	if req.SessionID != "" {
		if err := a.sessions.SetQuality(req.SessionID, quality); err != nil {
			a.logger.Warn("Quality change for unknown session",
				zap.String("session_id", req.SessionID))
		}
	}
}

// handleFramerateSet меняет частоту кадров на лету
func (a *Agent) handleFramerateSet(connID string, msg protocol.Message) {
	var req protocol.FramerateSetRequest
	if err := msg.DecodeData(&req); err != nil {
		a.sendError(connID, "bad_request", "malformed framerate.set payload")
		return
	}

	if err := a.pipeline.SetFramerate(req.Framerate); err != nil {
		a.sendError(connID, "bad_request", err.Error())
		return
	}
	a.encoder.SetFramerate(req.Framerate)
}

func (a *Agent) handleStatusRequest(connID string) {
	a.reply(connID, protocol.TypeStatus, a.Status())
}
