package transport

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/metrics"
	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubChannel канал в памяти для проверки менеджера
type stubChannel struct {
	mu       sync.Mutex
	messages []protocol.Message
	frames   []*types.EncodedFrame
	sendErr  error
	dropNext bool
	closed   int
}

func (s *stubChannel) SendMessage(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubChannel) SendFrame(frame *types.EncodedFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropNext {
		return true
	}
	s.frames = append(s.frames, frame)
	return false
}

func (s *stubChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubChannel) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestManager() *Manager {
	return NewManager(config.GetDefaultConfig(), metrics.NewTracker(), zap.NewNop())
}

func TestRegisterAndGet(t *testing.T) {
	m := newTestManager()

	id, err := m.Register("client-1", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)

	info, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, "client-1", info.ClientID)
	assert.Equal(t, types.TransportWebSocket, info.Kind)
	assert.Equal(t, types.StateConnecting, info.State)
	assert.Equal(t, 1, m.Count())
}

func TestRegisterEnforcesConnectionLimit(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.MaxConnections = 2
	m := NewManager(cfg, metrics.NewTracker(), zap.NewNop())

	_, err := m.Register("a", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)
	_, err = m.Register("b", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)

	_, err = m.Register("c", types.TransportWebSocket, &stubChannel{})
	require.Error(t, err)
	assert.Equal(t, agenterr.KindTransport, agenterr.KindOf(err))
}

func TestSend(t *testing.T) {
	m := newTestManager()
	ch := &stubChannel{}
	id, err := m.Register("client-1", types.TransportWebSocket, ch)
	require.NoError(t, err)

	msg, err := protocol.NewMessage(protocol.TypeStatus, protocol.ChannelControl, nil)
	require.NoError(t, err)

	require.NoError(t, m.Send(id, msg))
	assert.Len(t, ch.messages, 1)

	assert.Error(t, m.Send("no-such-connection", msg))
}

func TestBroadcastContinuesPastErrors(t *testing.T) {
	m := newTestManager()
	bad := &stubChannel{sendErr: agenterr.New(agenterr.KindTransport, "send queue closed")}
	good := &stubChannel{}

	_, err := m.Register("a", types.TransportWebSocket, bad)
	require.NoError(t, err)
	_, err = m.Register("b", types.TransportWebSocket, good)
	require.NoError(t, err)

	msg, err := protocol.NewMessage(protocol.TypeStatus, protocol.ChannelControl, nil)
	require.NoError(t, err)
	m.Broadcast(msg)

	assert.Len(t, good.messages, 1)
}

func testFrame() *types.EncodedFrame {
	return &types.EncodedFrame{
		ID:      types.NewID(),
		Width:   64,
		Height:  48,
		Codec:   types.CodecH264,
		Payload: make([]byte, 512),
	}
}

func TestBroadcastFrameSkipsConnecting(t *testing.T) {
	m := newTestManager()
	ch := &stubChannel{}
	id, err := m.Register("client-1", types.TransportWebSocket, ch)
	require.NoError(t, err)

	results := m.BroadcastFrame(testFrame())
	assert.Empty(t, results)
	assert.Equal(t, 0, ch.frameCount())

	m.MarkConnected(id)
	results = m.BroadcastFrame(testFrame())
	require.Len(t, results, 1)
	assert.Equal(t, "client-1", results[0].ClientID)
	assert.False(t, results[0].Dropped)
	assert.Equal(t, 1, ch.frameCount())
}

func TestBroadcastFramePrefersWebRTC(t *testing.T) {
	m := newTestManager()
	ws := &stubChannel{}
	rtc := &stubChannel{}

	wsID, err := m.Register("client-1", types.TransportWebSocket, ws)
	require.NoError(t, err)
	rtcID, err := m.Register("client-1", types.TransportWebRTC, rtc)
	require.NoError(t, err)
	m.MarkConnected(wsID)
	m.MarkConnected(rtcID)

	results := m.BroadcastFrame(testFrame())

	// Сигнальный WebSocket зрителя с живым WebRTC кадры не получает
	require.Len(t, results, 1)
	assert.Equal(t, 1, rtc.frameCount())
	assert.Equal(t, 0, ws.frameCount())
}

func TestBroadcastFrameCountsDrops(t *testing.T) {
	m := newTestManager()
	ch := &stubChannel{dropNext: true}
	id, err := m.Register("client-1", types.TransportWebSocket, ch)
	require.NoError(t, err)
	m.MarkConnected(id)

	results := m.BroadcastFrame(testFrame())
	require.Len(t, results, 1)
	assert.True(t, results[0].Dropped)
}

func TestBroadcastFrameDuringStateChanges(t *testing.T) {
	m := newTestManager()
	id, err := m.Register("client-1", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)
	m.MarkConnected(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.setState(id, types.StateReconnecting)
			m.setState(id, types.StateConnected)
			m.touch(id)
		}
	}()

	for {
		m.BroadcastFrame(testFrame())
		select {
		case <-done:
			m.BroadcastFrame(testFrame())
			return
		default:
		}
	}
}

func TestCloseConnectionIsIdempotent(t *testing.T) {
	m := newTestManager()
	ch := &stubChannel{}
	id, err := m.Register("client-1", types.TransportWebSocket, ch)
	require.NoError(t, err)

	m.CloseConnection(id)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 1, ch.closed)

	m.CloseConnection(id)
	m.CloseConnection("no-such-connection")
	assert.Equal(t, 1, ch.closed)
}

func TestStopClosesEverything(t *testing.T) {
	m := newTestManager()
	first := &stubChannel{}
	second := &stubChannel{}

	_, err := m.Register("a", types.TransportWebSocket, first)
	require.NoError(t, err)
	_, err = m.Register("b", types.TransportWebSocket, second)
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)
}

func TestDispatchInterceptsAnswer(t *testing.T) {
	m := newTestManager()
	var handled []protocol.Message
	m.SetHandler(func(connID string, msg protocol.Message) {
		handled = append(handled, msg)
	})

	id, err := m.Register("client-1", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)

	// Ответ на несуществующее WebRTC соединение глотается транспортом
	answer, err := protocol.NewMessage(protocol.TypeWebRTCAnswer, protocol.ChannelControl,
		protocol.OfferPayload{ConnectionID: "no-such-connection", SDP: "v=0"})
	require.NoError(t, err)
	m.dispatch(id, answer)
	assert.Empty(t, handled)

	status, err := protocol.NewMessage(protocol.TypeStatusRequest, protocol.ChannelControl, nil)
	require.NoError(t, err)
	m.dispatch(id, status)
	require.Len(t, handled, 1)
	assert.Equal(t, protocol.TypeStatusRequest, handled[0].Type)
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to types.ConnectionState
		want     bool
	}{
		{types.StateConnecting, types.StateConnected, true},
		{types.StateConnecting, types.StateFailed, true},
		{types.StateConnected, types.StateReconnecting, true},
		{types.StateConnected, types.StateDisconnected, true},
		{types.StateReconnecting, types.StateConnected, true},
		{types.StateFailed, types.StateDisconnected, true},
		{types.StateFailed, types.StateConnected, false},
		{types.StateFailed, types.StateReconnecting, false},
		{types.StateDisconnected, types.StateConnected, false},
		{types.StateConnecting, types.StateReconnecting, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, validTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestOfferFrame(t *testing.T) {
	t.Run("drop oldest", func(t *testing.T) {
		queue := make(chan *types.EncodedFrame, 2)
		a, b, c := testFrame(), testFrame(), testFrame()

		assert.False(t, offerFrame(queue, a, true))
		assert.False(t, offerFrame(queue, b, true))
		assert.True(t, offerFrame(queue, c, true))

		assert.Same(t, b, <-queue)
		assert.Same(t, c, <-queue)
	})

	t.Run("drop newest", func(t *testing.T) {
		queue := make(chan *types.EncodedFrame, 2)
		a, b, c := testFrame(), testFrame(), testFrame()

		assert.False(t, offerFrame(queue, a, false))
		assert.False(t, offerFrame(queue, b, false))
		assert.True(t, offerFrame(queue, c, false))

		assert.Same(t, a, <-queue)
		assert.Same(t, b, <-queue)
	})
}

func TestHandleAnswerErrors(t *testing.T) {
	m := newTestManager()

	err := m.HandleAnswer("no-such-connection", "v=0")
	require.Error(t, err)
	assert.Equal(t, agenterr.KindTransport, agenterr.KindOf(err))

	// WebSocket соединение не принимает SDP answer
	id, err := m.Register("client-1", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)
	assert.Error(t, m.HandleAnswer(id, "v=0"))
}

func TestDispatchTouchesConnection(t *testing.T) {
	m := newTestManager()
	id, err := m.Register("client-1", types.TransportWebSocket, &stubChannel{})
	require.NoError(t, err)

	before, _ := m.Get(id)

	msg := protocol.Message{Type: protocol.TypeStatusRequest, Data: json.RawMessage("{}")}
	m.dispatch(id, msg)

	after, _ := m.Get(id)
	assert.False(t, after.LastActivity.Before(before.LastActivity))
}
