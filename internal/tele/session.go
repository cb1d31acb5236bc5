// Package tele keeps one persistent connection to telemetry backend:
// periodic telemetry push, inbound commands, reconnect with backoff.
package tele

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/device"
	tele_config "github.com/temoto/hydro/internal/tele/config"
	"github.com/temoto/hydro/internal/tele/transport"
	"github.com/temoto/hydro/internal/telemetry"
	"github.com/temoto/hydro/log2"
)

const outQueueSize = 8

type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting-down"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Aggregator is what Session needs from telemetry.Registry.
type Aggregator interface {
	Actuator(name string) (*device.Actuator, error)
	Gather(ctx context.Context, selector string) (telemetry.SensorMap, error)
	Snapshot(ctx context.Context) telemetry.Snapshot
}

type Options struct {
	Interval time.Duration
	RetryMin time.Duration
	RetryMax time.Duration
}

func OptionsFromConfig(c *tele_config.Config) Options {
	return Options{
		Interval: c.Interval(),
		RetryMin: c.RetryMin(),
		RetryMax: c.RetryMax(),
	}
}

// Session contract:
// - Run loops until ctx is done, transport faults are never fatal
// - on connect: telemetry loop and command loop run concurrently
// - all outbound messages go through single writer goroutine
// - fault in any loop tears down both, wait backoff, dial again
// - nothing is replayed after reconnect
type Session struct {
	log       *log2.Log
	opt       Options
	transport transport.Transporter
	agg       Aggregator
	backoff   *helpers.Backoff
	state     uint32
	stat      Stat

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSession(opt Options, tr transport.Transporter, agg Aggregator, log *log2.Log) *Session {
	if opt.Interval <= 0 {
		opt.Interval = tele_config.DefaultInterval
	}
	if opt.RetryMin <= 0 {
		opt.RetryMin = tele_config.DefaultRetryMin
	}
	if opt.RetryMax < opt.RetryMin {
		opt.RetryMax = opt.RetryMin
	}
	return &Session{
		log:       log,
		opt:       opt,
		transport: tr,
		agg:       agg,
		backoff:   helpers.NewBackoff(opt.RetryMin, opt.RetryMax),
		sleep:     helpers.SleepContext,
	}
}

func (self *Session) State() State { return State(atomic.LoadUint32(&self.state)) }
func (self *Session) Stat() *Stat  { return &self.stat }

// NextRetry is the delay before next reconnect attempt.
func (self *Session) NextRetry() time.Duration { return self.backoff.Current() }

func (self *Session) setState(s State) {
	old := State(atomic.SwapUint32(&self.state, uint32(s)))
	if old != s {
		self.log.Debugf("tele state %s -> %s", old, s)
	}
}

func (self *Session) Run(ctx context.Context) error {
	defer self.setState(StateShuttingDown)
	self.log.Infof("tele start transport=%s interval=%v", self.transport.String(), self.opt.Interval)
	for {
		if ctx.Err() != nil {
			return nil
		}
		self.setState(StateConnecting)
		conn, err := self.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			self.stat.inc(&self.stat.DialErrors)
			self.setState(StateDisconnected)
			if !self.wait(ctx, err) {
				return nil
			}
			continue
		}

		self.backoff.Reset()
		self.stat.inc(&self.stat.Connects)
		self.stat.LastConnect.SetNow()
		self.setState(StateConnected)
		self.log.Infof("tele connected %s", self.transport.String())

		err = self.serve(ctx, conn)
		if ctx.Err() != nil {
			self.setState(StateShuttingDown)
			_ = conn.Close()
			return nil
		}
		self.stat.inc(&self.stat.Disconnects)
		self.setState(StateDisconnected)
		self.log.Debugf("tele session after %v stat %s", self.stat.SinceConnect(), self.stat.String())
		if !self.wait(ctx, err) {
			return nil
		}
	}
}

// wait sleeps current backoff, returns false if ctx is done.
func (self *Session) wait(ctx context.Context, cause error) bool {
	delay := self.backoff.Failure()
	self.log.Errorf("tele %s err=%v retry in %v", self.transport.String(), cause, delay)
	return self.sleep(ctx, delay) == nil
}

func (self *Session) serve(ctx context.Context, conn transport.Conn) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan []byte, outQueueSize)
	errch := make(chan error, 3)
	wg := sync.WaitGroup{}
	wg.Add(3)
	go func() { defer wg.Done(); errch <- self.writer(sctx, conn, out) }()
	go func() { defer wg.Done(); errch <- self.telemetryLoop(sctx, out) }()
	go func() { defer wg.Done(); errch <- self.commandLoop(sctx, conn, out) }()

	var err error
	select {
	case err = <-errch:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	// unblocks ReadMessage
	_ = conn.Close()
	wg.Wait()
	return err
}

// writer is the only goroutine calling conn.WriteMessage.
func (self *Session) writer(ctx context.Context, conn transport.Conn, out <-chan []byte) error {
	for {
		select {
		case b := <-out:
			if err := conn.WriteMessage(b); err != nil {
				return errors.Annotate(err, "write")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (self *Session) send(ctx context.Context, out chan<- []byte, b []byte) error {
	select {
	case out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (self *Session) telemetryLoop(ctx context.Context, out chan<- []byte) error {
	for {
		snap := self.agg.Snapshot(ctx)
		if ctx.Err() != nil {
			// cycle in progress at disconnect is dropped
			return ctx.Err()
		}
		b, err := json.Marshal(snap)
		if err != nil {
			return errors.Annotate(err, "telemetry marshal")
		}
		if err = self.send(ctx, out, b); err != nil {
			return err
		}
		self.stat.inc(&self.stat.TelemetrySent)
		if err = self.sleep(ctx, self.opt.Interval); err != nil {
			return err
		}
	}
}

func (self *Session) commandLoop(ctx context.Context, conn transport.Conn, out chan<- []byte) error {
	for {
		b, err := conn.ReadMessage()
		if err != nil {
			return errors.Annotate(err, "read")
		}
		response := self.Dispatch(ctx, b)
		if response == nil {
			continue
		}
		if err = self.send(ctx, out, response); err != nil {
			return err
		}
	}
}
