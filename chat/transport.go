package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

type TransportSettings struct {
	WsHandshakeTimeout time.Duration
	// fixed delay between attempts. no backoff growth and no retry
	// ceiling, deliberately. see DESIGN.md before changing this.
	ReconnectTimeout time.Duration
	WriteTimeout     time.Duration
}

func DefaultTransportSettings() *TransportSettings {
	return &TransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   3 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

// outbound socket frames carry their fields at the top level
type OutboundFrame struct {
	Type   EventKind `json:"type"`
	Avatar string    `json:"avatar,omitempty"`
}

// Transport owns the socket lifecycle: it keeps exactly one channel
// current, feeds every inbound frame to the router in delivery order, and
// schedules a reconnect whenever the channel drops. a send while the
// channel is down is a no-op, not an error.
type Transport struct {
	ctx    context.Context
	cancel context.CancelFunc

	wsUrl  string
	auth   *Auth
	router *Router

	settings *TransportSettings

	// correlates log lines across reconnects of this transport
	instanceId Id

	mutex     sync.Mutex
	ws        *websocket.Conn
	connected bool

	statusMonitor *Monitor
}

func NewTransportWithDefaults(
	ctx context.Context,
	wsUrl string,
	auth *Auth,
	router *Router,
) *Transport {
	return NewTransport(ctx, wsUrl, auth, router, DefaultTransportSettings())
}

func NewTransport(
	ctx context.Context,
	wsUrl string,
	auth *Auth,
	router *Router,
	settings *TransportSettings,
) *Transport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &Transport{
		ctx:           cancelCtx,
		cancel:        cancel,
		wsUrl:         wsUrl,
		auth:          auth,
		router:        router,
		settings:      settings,
		instanceId:    NewId(),
		statusMonitor: NewMonitor(),
	}
	go transport.run()
	return transport
}

func (self *Transport) run() {
	defer self.cancel()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)

		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.dialUrl(), nil)
		if err != nil {
			glog.Infof("[t]connect error %s = %s\n", self.instanceId, err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			self.setConn(ws)
			defer self.setConn(nil)

			go func() {
				// unblock the read loop when the transport is closed
				select {
				case <-handleCtx.Done():
				}
				ws.Close()
			}()

			for {
				messageType, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[t]%s<- error = %s\n", self.instanceId, err)
					return
				}

				switch messageType {
				case websocket.TextMessage, websocket.BinaryMessage:
					// a frame that does not decode is dropped.
					// the stream continues.
					if err := self.router.Route(message); err != nil {
						glog.Infof("[t]%s<- drop frame = %s\n", self.instanceId, err)
					} else {
						glog.V(2).Infof("[t]%s<-\n", self.instanceId)
					}
				default:
					glog.V(2).Infof("[t]other=%d %s<-\n", messageType, self.instanceId)
				}
			}
		}
		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		c()

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *Transport) dialUrl() string {
	token := ""
	if self.auth != nil {
		token = self.auth.Token()
	}
	if token == "" {
		return self.wsUrl
	}
	return fmt.Sprintf("%s?token=%s", self.wsUrl, url.QueryEscape(token))
}

func (self *Transport) setConn(ws *websocket.Conn) {
	self.mutex.Lock()
	self.ws = ws
	self.connected = ws != nil
	self.mutex.Unlock()

	self.statusMonitor.NotifyAll()
}

func (self *Transport) Connected() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.connected
}

// closed and reopened whenever the live status flips
func (self *Transport) StatusMonitor() *Monitor {
	return self.statusMonitor
}

// a no-op when the channel is not live
func (self *Transport) Send(frame *OutboundFrame) error {
	self.mutex.Lock()
	ws := self.ws
	connected := self.connected
	self.mutex.Unlock()

	if !connected {
		glog.V(2).Infof("[t]%s-> not live, drop %s\n", self.instanceId, frame.Type)
		return nil
	}

	frameBytes, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, frameBytes); err != nil {
		// the read loop sees the same failure and schedules the reconnect
		glog.Infof("[t]%s-> error = %s\n", self.instanceId, err)
		return err
	}
	glog.V(2).Infof("[t]%s->\n", self.instanceId)
	return nil
}

func (self *Transport) SendTyping() error {
	return self.Send(&OutboundFrame{
		Type: EventSendTyping,
	})
}

func (self *Transport) SendAvatarUpdate(avatar string) error {
	return self.Send(&OutboundFrame{
		Type:   EventUpdateAvatar,
		Avatar: avatar,
	})
}

func (self *Transport) Close() {
	self.cancel()
}
