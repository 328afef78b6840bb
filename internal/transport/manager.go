package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/metrics"
	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

// MessageHandler получает входящие сообщения соединения
type MessageHandler func(connID string, msg protocol.Message)

// DeliveryResult итог доставки кадра одному соединению
type DeliveryResult struct {
	ClientID string
	Bytes    int
	Dropped  bool
}

type connection struct {
	info    types.ConnectionInfo
	channel Channel
}

// Manager реестр транспортных соединений. Владеет каналами WebRTC и
// WebSocket, следит за машиной состояний каждого соединения и
// рассылает кадры подключенным зрителям.
type Manager struct {
	cfg     *config.Config
	tracker *metrics.Tracker
	logger  *zap.Logger

	mu      sync.RWMutex
	conns   map[string]*connection
	handler MessageHandler
}

// NewManager создает менеджер соединений
func NewManager(cfg *config.Config, tracker *metrics.Tracker, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger,
		conns:   make(map[string]*connection),
	}
}

// SetHandler задает обработчик входящих сообщений. Вызывается один раз
// при старте, до регистрации первого соединения.
func (m *Manager) SetHandler(h MessageHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Register добавляет соединение с готовым каналом в реестр
// в состоянии Connecting
func (m *Manager) Register(clientID string, kind types.TransportKind, ch Channel) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conns) >= m.cfg.Server.MaxConnections {
		return "", agenterr.Newf(agenterr.KindTransport,
			"connection limit reached: %d", m.cfg.Server.MaxConnections)
	}

	id := types.NewID()
	now := time.Now()
	m.conns[id] = &connection{
		info: types.ConnectionInfo{
			ID:           id,
			Kind:         kind,
			State:        types.StateConnecting,
			ClientID:     clientID,
			StartTime:    now,
			LastActivity: now,
		},
		channel: ch,
	}

	m.logger.Info("Connection registered",
		zap.String("connection_id", id),
		zap.String("client_id", clientID),
		zap.String("kind", string(kind)))

	return id, nil
}

// RegisterWebSocket принимает установленное WebSocket соединение
// и запускает его циклы чтения и записи
func (m *Manager) RegisterWebSocket(clientID string, conn *websocket.Conn) (string, error) {
	if !m.cfg.Transport.WebSocketEnabled {
		return "", agenterr.New(agenterr.KindTransport, "websocket transport is disabled")
	}

	ch := newWSChannel(conn, wsChannelConfig{
		queueSize:    m.cfg.Transport.FrameQueueSize,
		dropOldest:   m.cfg.Transport.DropPolicy == "oldest",
		pingInterval: m.cfg.Server.HeartbeatInterval.D(),
	}, m.logger)

	id, err := m.Register(clientID, types.TransportWebSocket, ch)
	if err != nil {
		ch.Close()
		return "", err
	}

	ch.onMessage = func(msg protocol.Message) { m.dispatch(id, msg) }
	ch.onClosed = func() { m.connectionLost(id) }
	ch.start()

	m.MarkConnected(id)
	return id, nil
}

// CreateWebRTCConnection создает исходящее WebRTC соединение и
// возвращает его идентификатор вместе с SDP offer. Offer доставляется
// зрителю по сигнальному WebSocket соединению.
func (m *Manager) CreateWebRTCConnection(clientID string) (string, string, error) {
	if !m.cfg.Transport.WebRTCEnabled {
		return "", "", agenterr.New(agenterr.KindTransport, "webrtc transport is disabled")
	}

	ch, err := newRTCChannel(rtcChannelConfig{
		iceServers: m.cfg.Transport.ICEServers,
		queueSize:  m.cfg.Transport.FrameQueueSize,
		dropOldest: m.cfg.Transport.DropPolicy == "oldest",
	}, m.logger)
	if err != nil {
		return "", "", agenterr.Wrap(agenterr.KindTransport, "create webrtc connection", err)
	}

	id, err := m.Register(clientID, types.TransportWebRTC, ch)
	if err != nil {
		ch.Close()
		return "", "", err
	}

	ch.onMessage = func(msg protocol.Message) { m.dispatch(id, msg) }
	ch.onState = func(state types.ConnectionState) { m.handleStateChange(id, state) }

	offer, err := ch.Offer()
	if err != nil {
		m.CloseConnection(id)
		return "", "", agenterr.Wrap(agenterr.KindTransport, "create webrtc offer", err)
	}

	return id, offer, nil
}

// MarkConnected переводит соединение в состояние Connected после
// завершения рукопожатия его транспорта
func (m *Manager) MarkConnected(id string) {
	m.setState(id, types.StateConnected)
}

// HandleAnswer применяет SDP answer зрителя к WebRTC соединению
func (m *Manager) HandleAnswer(connID, sdp string) error {
	m.mu.RLock()
	conn, exists := m.conns[connID]
	m.mu.RUnlock()

	if !exists {
		return agenterr.Newf(agenterr.KindTransport, "connection not found: %s", connID)
	}

	rtc, ok := conn.channel.(*rtcChannel)
	if !ok {
		return agenterr.Newf(agenterr.KindTransport, "connection is not webrtc: %s", connID)
	}

	return rtc.HandleAnswer(sdp)
}

// dispatch передает входящее сообщение обработчику. Сигнальные
// сообщения WebRTC перехватываются транспортным слоем.
func (m *Manager) dispatch(connID string, msg protocol.Message) {
	m.touch(connID)

	if msg.Type == protocol.TypeWebRTCAnswer {
		var payload protocol.OfferPayload
		if err := msg.DecodeData(&payload); err != nil {
			m.logger.Warn("Malformed webrtc answer", zap.Error(err))
			return
		}
		if err := m.HandleAnswer(payload.ConnectionID, payload.SDP); err != nil {
			m.logger.Warn("Apply webrtc answer failed", zap.Error(err))
		}
		return
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler != nil {
		handler(connID, msg)
	}
}

// Send отправляет сообщение в конкретное соединение
func (m *Manager) Send(connID string, msg protocol.Message) error {
	m.mu.RLock()
	conn, exists := m.conns[connID]
	m.mu.RUnlock()

	if !exists {
		return agenterr.Newf(agenterr.KindTransport, "connection not found: %s", connID)
	}
	return conn.channel.SendMessage(msg)
}

// Broadcast отправляет сообщение во все соединения.
// Ошибка одного получателя не мешает остальным.
func (m *Manager) Broadcast(msg protocol.Message) {
	for _, conn := range m.snapshot() {
		if err := conn.channel.SendMessage(msg); err != nil {
			m.logger.Warn("Broadcast send failed",
				zap.String("connection_id", conn.info.ID),
				zap.Error(err))
		}
	}
}

// BroadcastFrame рассылает кадр подключенным зрителям. Зрителям с
// установленным WebRTC соединением кадр идет по media каналу, их
// сигнальный WebSocket кадры не получает.
func (m *Manager) BroadcastFrame(frame *types.EncodedFrame) []DeliveryResult {
	conns := m.snapshot()

	rtcClients := make(map[string]bool)
	for _, conn := range conns {
		if conn.info.Kind == types.TransportWebRTC && conn.info.State == types.StateConnected {
			rtcClients[conn.info.ClientID] = true
		}
	}

	var results []DeliveryResult
	for _, conn := range conns {
		if conn.info.State != types.StateConnected {
			continue
		}
		if conn.info.Kind == types.TransportWebSocket && rtcClients[conn.info.ClientID] {
			continue
		}

		dropped := conn.channel.SendFrame(frame)
		if dropped {
			m.tracker.AddFrameDrop()
		} else {
			m.tracker.AddFrameSent(len(frame.Payload))
		}
		results = append(results, DeliveryResult{
			ClientID: conn.info.ClientID,
			Bytes:    len(frame.Payload),
			Dropped:  dropped,
		})
	}
	return results
}

// CloseConnection закрывает и удаляет соединение.
// Закрытие неизвестного соединения не является ошибкой.
func (m *Manager) CloseConnection(id string) {
	m.mu.Lock()
	conn, exists := m.conns[id]
	if exists {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	if !exists {
		return
	}

	conn.channel.Close()
	m.logger.Info("Connection closed",
		zap.String("connection_id", id),
		zap.String("client_id", conn.info.ClientID))
}

// Get возвращает информацию о соединении
func (m *Manager) Get(id string) (types.ConnectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, exists := m.conns[id]
	if !exists {
		return types.ConnectionInfo{}, false
	}
	return conn.info, true
}

// GetAll возвращает информацию обо всех соединениях
func (m *Manager) GetAll() []types.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]types.ConnectionInfo, 0, len(m.conns))
	for _, conn := range m.conns {
		infos = append(infos, conn.info)
	}
	return infos
}

// Count возвращает число соединений
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Stop закрывает все соединения
func (m *Manager) Stop() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*connection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.channel.Close()
	}
	if len(conns) > 0 {
		m.logger.Info("All connections closed", zap.Int("count", len(conns)))
	}
}

// snapshot возвращает копии соединений: рассылка читает их без
// блокировки, пока setState и touch меняют оригиналы под мьютексом
func (m *Manager) snapshot() []connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, *conn)
	}
	return conns
}

func (m *Manager) touch(id string) {
	m.mu.Lock()
	if conn, exists := m.conns[id]; exists {
		conn.info.LastActivity = time.Now()
	}
	m.mu.Unlock()
}

// validTransition проверяет переход машины состояний соединения.
// Failed терминально: из него можно только удалить соединение.
func validTransition(from, to types.ConnectionState) bool {
	switch from {
	case types.StateConnecting:
		return to == types.StateConnected || to == types.StateFailed || to == types.StateDisconnected
	case types.StateConnected:
		return to == types.StateReconnecting || to == types.StateDisconnected || to == types.StateFailed
	case types.StateReconnecting:
		return to == types.StateConnected || to == types.StateFailed || to == types.StateDisconnected
	case types.StateFailed:
		return to == types.StateDisconnected
	default:
		return false
	}
}

func (m *Manager) setState(id string, state types.ConnectionState) {
	m.mu.Lock()
	conn, exists := m.conns[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	if !validTransition(conn.info.State, state) {
		m.mu.Unlock()
		m.logger.Warn("Invalid connection state transition",
			zap.String("connection_id", id),
			zap.String("from", conn.info.State.String()),
			zap.String("to", state.String()))
		return
	}
	conn.info.State = state
	m.mu.Unlock()

	m.logger.Info("Connection state changed",
		zap.String("connection_id", id),
		zap.String("state", state.String()))
}

// handleStateChange реагирует на события ICE соединения WebRTC
func (m *Manager) handleStateChange(id string, state types.ConnectionState) {
	switch state {
	case types.StateFailed:
		m.setState(id, types.StateFailed)
		m.CloseConnection(id)
	case types.StateDisconnected:
		m.connectionLost(id)
	default:
		m.setState(id, state)
	}
}

// connectionLost обрабатывает обрыв соединения зрителем или сетью
func (m *Manager) connectionLost(id string) {
	m.mu.RLock()
	_, exists := m.conns[id]
	m.mu.RUnlock()
	if !exists {
		return
	}

	m.setState(id, types.StateDisconnected)
	m.CloseConnection(id)
}
