// Package transport provides persistent message connection to telemetry backend.
package transport

import (
	"context"

	"github.com/juju/errors"
	tele_config "github.com/temoto/hydro/internal/tele/config"
	"github.com/temoto/hydro/log2"
)

// Transport contract:
// - Dial establishes one connection or fails, no internal reconnect
// - any Conn error means connection is unusable, caller must Close and Dial again
// - ReadMessage is called from one goroutine, WriteMessage from one (other) goroutine
// - Close unblocks pending ReadMessage, safe to call more than once
type Transporter interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

var ErrClosed = errors.New("connection closed")

func New(c *tele_config.Config, log *log2.Log) (Transporter, error) {
	switch c.TransportName() {
	case tele_config.TransportWebsocket:
		return NewWebsocket(c.URL, c.NetworkTimeout(), c.Keepalive(), log), nil
	case tele_config.TransportMqtt:
		return NewMqtt(MqttOptions{
			BrokerURL:      c.URL,
			ClientId:       c.MqttClientId,
			TopicPrefix:    c.MqttTopicPrefix,
			NetworkTimeout: c.NetworkTimeout(),
			KeepAlive:      c.Keepalive(),
			LogDebug:       c.MqttLogDebug,
			Log:            log,
		}), nil
	}
	return nil, errors.NotValidf("tele transport=%s", c.Transport)
}
