package tele_config

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestKeepalive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultKeepalive, (&Config{}).Keepalive())
	assert.Equal(t, 5*time.Second, (&Config{KeepaliveSec: 5}).Keepalive())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		c     Config
		valid bool
	}{
		{"disabled", Config{}, true},
		{"websocket", Config{Enabled: true, URL: "ws://backend/ws/pi", KeepaliveSec: 20}, true},
		{"negative-keepalive", Config{Enabled: true, URL: "ws://backend/ws/pi", KeepaliveSec: -1}, false},
		{"empty-url", Config{Enabled: true}, false},
		{"transport", Config{Enabled: true, URL: "x", Transport: "carrier-pigeon"}, false},
		{"retry", Config{Enabled: true, URL: "x", RetryMinSec: 30, RetryMaxSec: 20}, false},
		{"mqtt-client-id", Config{Enabled: true, URL: "tcp://broker:1883", Transport: TransportMqtt}, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			err := c.c.Validate()
			if c.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsNotValid(err), "err=%v", err)
			}
		})
	}
}
