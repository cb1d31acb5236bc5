package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/hydro/log2"
)

type Websocket struct {
	URL            string
	NetworkTimeout time.Duration
	// ping period, 0 disables keepalive
	Keepalive time.Duration
	log       *log2.Log
	dialer    websocket.Dialer
}

func NewWebsocket(url string, networkTimeout, keepalive time.Duration, log *log2.Log) *Websocket {
	return &Websocket{
		URL:            url,
		NetworkTimeout: networkTimeout,
		Keepalive:      keepalive,
		log:            log,
		dialer: websocket.Dialer{
			HandshakeTimeout: networkTimeout,
		},
	}
}

func (self *Websocket) String() string { return "websocket " + self.URL }

func (self *Websocket) Dial(ctx context.Context) (Conn, error) {
	c, resp, err := self.dialer.DialContext(ctx, self.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Annotatef(err, "websocket dial url=%s status=%s", self.URL, resp.Status)
		}
		return nil, errors.Annotatef(err, "websocket dial url=%s", self.URL)
	}
	self.log.Debugf("websocket connected url=%s keepalive=%v", self.URL, self.Keepalive)
	conn := &wsConn{
		c:       c,
		log:     self.log,
		timeout: self.NetworkTimeout,
		ping:    self.Keepalive,
		done:    make(chan struct{}),
	}
	if conn.ping > 0 {
		if err = conn.extendRead(); err != nil {
			_ = c.Close()
			return nil, errors.Annotate(err, "websocket read deadline")
		}
		// pong handler runs inside ReadMessage
		c.SetPongHandler(func(string) error { return conn.extendRead() })
		go conn.pinger()
	}
	return conn, nil
}

type wsConn struct {
	c         *websocket.Conn
	log       *log2.Log
	timeout   time.Duration
	ping      time.Duration
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage accepts both text and binary frames.
// With keepalive, fails when peer sends nothing (not even pong) for 2 ping periods.
func (self *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := self.c.ReadMessage()
	if err != nil {
		return nil, errors.Annotate(err, "websocket read")
	}
	if self.ping > 0 {
		if err = self.extendRead(); err != nil {
			return nil, errors.Annotate(err, "websocket read deadline")
		}
	}
	return b, nil
}

func (self *wsConn) WriteMessage(b []byte) error {
	if self.timeout > 0 {
		if err := self.c.SetWriteDeadline(time.Now().Add(self.timeout)); err != nil {
			return errors.Annotate(err, "websocket write deadline")
		}
	}
	return errors.Annotate(self.c.WriteMessage(websocket.TextMessage, b), "websocket write")
}

func (self *wsConn) Close() error {
	self.closeOnce.Do(func() {
		close(self.done)
		// best effort close frame, peer may be gone already
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = self.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		self.closeErr = self.c.Close()
	})
	return self.closeErr
}

func (self *wsConn) extendRead() error {
	return self.c.SetReadDeadline(time.Now().Add(2 * self.ping))
}

// pinger sends control frames, WriteControl is safe concurrently with WriteMessage.
// Failed ping is left to read deadline.
func (self *wsConn) pinger() {
	t := time.NewTicker(self.ping)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			wait := self.timeout
			if wait <= 0 || wait > self.ping {
				wait = self.ping
			}
			if err := self.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				self.log.Debugf("websocket ping err=%v", err)
				return
			}
		case <-self.done:
			return
		}
	}
}
