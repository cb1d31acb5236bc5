// Separate package is workaround to import cycles.
package tele_config

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/hydro/helpers"
)

const (
	TransportWebsocket = "websocket"
	TransportMqtt      = "mqtt"

	DefaultInterval       = 60 * time.Second
	DefaultRetryMin       = 10 * time.Second
	DefaultRetryMax       = 60 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
	DefaultKeepalive      = 20 * time.Second
)

type Config struct { //nolint:maligned
	Enabled           bool   `hcl:"enabled"`
	Transport         string `hcl:"transport"`
	URL               string `hcl:"url"`
	IntervalSec       int    `hcl:"interval_sec"`
	RetryMinSec       int    `hcl:"retry_min_sec"`
	RetryMaxSec       int    `hcl:"retry_max_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	MqttClientId      string `hcl:"mqtt_client_id"`
	MqttTopicPrefix   string `hcl:"mqtt_topic_prefix"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	LogDebug          bool   `hcl:"log_debug"`
}

func (c *Config) Interval() time.Duration {
	return helpers.IntSecondDefault(c.IntervalSec, DefaultInterval)
}
func (c *Config) RetryMin() time.Duration {
	return helpers.IntSecondDefault(c.RetryMinSec, DefaultRetryMin)
}
func (c *Config) RetryMax() time.Duration {
	return helpers.IntSecondDefault(c.RetryMaxSec, DefaultRetryMax)
}
func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.NetworkTimeoutSec, DefaultNetworkTimeout)
}

// Keepalive is ping period, connection is dead after 2 periods without any inbound frame.
func (c *Config) Keepalive() time.Duration {
	return helpers.IntSecondDefault(c.KeepaliveSec, DefaultKeepalive)
}

// TransportName with default websocket.
func (c *Config) TransportName() string {
	if c.Transport == "" {
		return TransportWebsocket
	}
	return c.Transport
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.TransportName() {
	case TransportWebsocket, TransportMqtt:
	default:
		return errors.NotValidf("tele transport=%s", c.Transport)
	}
	if c.URL == "" {
		return errors.NotValidf("tele url empty")
	}
	if c.IntervalSec < 0 || c.RetryMinSec < 0 || c.RetryMaxSec < 0 || c.NetworkTimeoutSec < 0 || c.KeepaliveSec < 0 {
		return errors.NotValidf("tele negative duration")
	}
	if c.RetryMax() < c.RetryMin() {
		return errors.NotValidf("tele retry_max_sec=%d < retry_min_sec=%d", c.RetryMaxSec, c.RetryMinSec)
	}
	if c.TransportName() == TransportMqtt && c.MqttClientId == "" {
		return errors.NotValidf("tele mqtt_client_id empty")
	}
	return nil
}
