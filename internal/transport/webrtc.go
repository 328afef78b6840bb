package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

type rtcChannelConfig struct {
	iceServers []string
	queueSize  int
	dropOldest bool
}

// rtcChannel канал поверх WebRTC. Агент выступает инициатором:
// создает peer connection с двумя data каналами (control надежный и
// упорядоченный, media без повторов и без порядка), формирует offer
// и ждет answer зрителя через сигнальный WebSocket.
type rtcChannel struct {
	pc      *webrtc.PeerConnection
	control *webrtc.DataChannel
	media   *webrtc.DataChannel
	logger  *zap.Logger

	frames      chan *types.EncodedFrame
	dropOldest  bool
	done        chan struct{}
	established chan struct{}

	closeOnce sync.Once
	estOnce   sync.Once

	onMessage func(protocol.Message)
	onState   func(types.ConnectionState)
}

func newRTCChannel(cfg rtcChannelConfig, logger *zap.Logger) (*rtcChannel, error) {
	settings := webrtc.SettingEngine{}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.iceServers}},
	})
	if err != nil {
		return nil, err
	}

	c := &rtcChannel{
		pc:          pc,
		logger:      logger,
		frames:      make(chan *types.EncodedFrame, cfg.queueSize),
		dropOldest:  cfg.dropOldest,
		done:        make(chan struct{}),
		established: make(chan struct{}),
	}

	control, err := pc.CreateDataChannel("control", nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	c.control = control

	ordered := false
	var retransmits uint16
	media, err := pc.CreateDataChannel("media", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	c.media = media

	control.OnMessage(func(dcMsg webrtc.DataChannelMessage) {
		msg, err := protocol.Decode(dcMsg.Data)
		if err != nil {
			c.logger.Warn("Malformed message on control channel", zap.Error(err))
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.handleICEStateChange(state)
	})

	go c.frameWriter()

	return c, nil
}

// handleICEStateChange транслирует состояние ICE в машину состояний
// соединения. Disconnected означает попытку восстановления, Failed
// терминален.
func (c *rtcChannel) handleICEStateChange(state webrtc.ICEConnectionState) {
	c.logger.Debug("ICE connection state changed", zap.String("state", state.String()))

	var next types.ConnectionState
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		c.estOnce.Do(func() { close(c.established) })
		next = types.StateConnected
	case webrtc.ICEConnectionStateDisconnected:
		next = types.StateReconnecting
	case webrtc.ICEConnectionStateFailed:
		next = types.StateFailed
	case webrtc.ICEConnectionStateClosed:
		next = types.StateDisconnected
	default:
		return
	}

	if c.onState != nil {
		c.onState(next)
	}
}

// Offer формирует SDP offer со всеми ICE кандидатами.
// Trickle ICE не используется: сигналинг обходится одним обменом.
func (c *rtcChannel) Offer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}

	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	<-gathered

	return c.pc.LocalDescription().SDP, nil
}

// HandleAnswer применяет SDP answer зрителя
func (c *rtcChannel) HandleAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (c *rtcChannel) SendMessage(msg protocol.Message) error {
	if c.control.ReadyState() != webrtc.DataChannelStateOpen {
		return agenterr.New(agenterr.KindTransport, "control channel is not open")
	}
	data, err := msg.Encode()
	if err != nil {
		return agenterr.Wrap(agenterr.KindTransport, "encode message", err)
	}
	if err := c.control.Send(data); err != nil {
		return agenterr.Wrap(agenterr.KindTransport, "send on control channel", err)
	}
	return nil
}

func (c *rtcChannel) SendFrame(frame *types.EncodedFrame) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	return offerFrame(c.frames, frame, c.dropOldest)
}

// frameWriter пишет кадры в media канал после установления соединения
func (c *rtcChannel) frameWriter() {
	select {
	case <-c.established:
	case <-c.done:
		return
	}

	for {
		select {
		case frame := <-c.frames:
			msg, err := protocol.NewMessage(protocol.TypeFrame, protocol.ChannelMedia, frame)
			if err != nil {
				c.logger.Error("Encode frame failed", zap.Error(err))
				continue
			}
			data, err := msg.Encode()
			if err != nil {
				c.logger.Error("Encode frame message failed", zap.Error(err))
				continue
			}
			if err := c.media.Send(data); err != nil {
				c.logger.Warn("Send on media channel failed", zap.Error(err))
			}
		case <-c.done:
			return
		}
	}
}

func (c *rtcChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pc.Close()
	})
	return err
}
