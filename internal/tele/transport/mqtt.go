package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/hydro/log2"
)

const (
	mqttTopicDown = "down"
	mqttTopicUp   = "up"
	mqttQos       = 1
	mqttInbox     = 32
)

type MqttOptions struct {
	BrokerURL      string
	ClientId       string
	TopicPrefix    string // default ClientId
	NetworkTimeout time.Duration
	KeepAlive      time.Duration
	LogDebug       bool
	Log            *log2.Log
}

// Mqtt carries commands on <prefix>/down and everything outbound on <prefix>/up.
// paho auto reconnect is off, Session owns reconnect policy.
type Mqtt struct {
	opt       MqttOptions
	topicDown string
	topicUp   string
}

var mqttLogOnce sync.Once

func NewMqtt(opt MqttOptions) *Mqtt {
	prefix := opt.TopicPrefix
	if prefix == "" {
		prefix = opt.ClientId
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if opt.KeepAlive == 0 {
		opt.KeepAlive = 60 * time.Second
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = 30 * time.Second
	}
	// paho loggers are package globals
	mqttLogOnce.Do(func() {
		mqtt.ERROR = opt.Log
		mqtt.CRITICAL = opt.Log
		if opt.LogDebug {
			mqtt.DEBUG = opt.Log
		}
	})
	return &Mqtt{
		opt:       opt,
		topicDown: fmt.Sprintf("%s/%s", prefix, mqttTopicDown),
		topicUp:   fmt.Sprintf("%s/%s", prefix, mqttTopicUp),
	}
}

func (self *Mqtt) String() string { return "mqtt " + self.opt.BrokerURL }

func (self *Mqtt) Dial(ctx context.Context) (Conn, error) {
	c := &mqttConn{
		log:     self.opt.Log,
		topicUp: self.topicUp,
		timeout: self.opt.NetworkTimeout,
		inbox:   make(chan []byte, mqttInbox),
		lost:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	opts := mqtt.NewClientOptions().
		AddBroker(self.opt.BrokerURL).
		SetClientID(self.opt.ClientId).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetKeepAlive(self.opt.KeepAlive).
		SetPingTimeout(self.opt.NetworkTimeout).
		SetConnectTimeout(self.opt.NetworkTimeout).
		SetWriteTimeout(self.opt.NetworkTimeout).
		SetOrderMatters(true).
		SetDefaultPublishHandler(c.onMessage).
		SetConnectionLostHandler(c.onLost)
	c.m = mqtt.NewClient(opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.wait(c.m.Connect()); err != nil {
		return nil, errors.Annotatef(err, "mqtt connect broker=%s", self.opt.BrokerURL)
	}
	if err := c.wait(c.m.Subscribe(self.topicDown, mqttQos, c.onMessage)); err != nil {
		c.m.Disconnect(0)
		return nil, errors.Annotatef(err, "mqtt subscribe topic=%s", self.topicDown)
	}
	self.opt.Log.Debugf("mqtt connected broker=%s subscribed=%s", self.opt.BrokerURL, self.topicDown)
	return c, nil
}

type mqttConn struct {
	log     *log2.Log
	m       mqtt.Client
	topicUp string
	timeout time.Duration

	inbox     chan []byte
	lost      chan struct{}
	lostOnce  sync.Once
	lostErr   error
	closed    chan struct{}
	closeOnce sync.Once
}

func (self *mqttConn) ReadMessage() ([]byte, error) {
	// drain inbox before reporting loss
	select {
	case b := <-self.inbox:
		return b, nil
	default:
	}
	select {
	case b := <-self.inbox:
		return b, nil
	case <-self.lost:
		return nil, errors.Annotate(self.lostErr, "mqtt connection lost")
	case <-self.closed:
		return nil, ErrClosed
	}
}

func (self *mqttConn) WriteMessage(b []byte) error {
	select {
	case <-self.lost:
		return errors.Annotate(self.lostErr, "mqtt connection lost")
	case <-self.closed:
		return ErrClosed
	default:
	}
	t := self.m.Publish(self.topicUp, mqttQos, false, b)
	if !t.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", self.topicUp)
	}
	return errors.Annotatef(t.Error(), "mqtt publish topic=%s", self.topicUp)
}

func (self *mqttConn) Close() error {
	self.closeOnce.Do(func() {
		close(self.closed)
		self.m.Disconnect(250)
	})
	return nil
}

func (self *mqttConn) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	select {
	case self.inbox <- payload:
	case <-self.closed:
	default:
		self.log.Errorf("mqtt inbox full, dropped topic=%s payload=%q", msg.Topic(), payload)
	}
}

func (self *mqttConn) onLost(_ mqtt.Client, err error) {
	self.lostOnce.Do(func() {
		if err == nil {
			err = errors.New("unknown reason")
		}
		self.lostErr = err
		close(self.lost)
	})
}

func (self *mqttConn) wait(t mqtt.Token) error {
	if !t.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt network timeout=%v", self.timeout)
	}
	return t.Error()
}
