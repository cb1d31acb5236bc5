package tele

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Stat counters live for process lifetime, updated from session goroutines.
type Stat struct {
	Connects        uint32
	DialErrors      uint32
	Disconnects     uint32
	TelemetrySent   uint32
	CommandsHandled uint32
	InvalidMessages uint32
	LastConnect     atomic_clock.Clock
}

func (self *Stat) inc(p *uint32) { atomic.AddUint32(p, 1) }

func (self *Stat) Get(p *uint32) uint32 { return atomic.LoadUint32(p) }

// Uptime of current connection, zero if never connected.
func (self *Stat) SinceConnect() time.Duration {
	if self.LastConnect.IsZero() {
		return 0
	}
	return atomic_clock.Since(&self.LastConnect)
}

func (self *Stat) String() string {
	return fmt.Sprintf("connects=%d dial_errors=%d disconnects=%d telemetry_sent=%d commands=%d invalid=%d",
		self.Get(&self.Connects), self.Get(&self.DialErrors), self.Get(&self.Disconnects),
		self.Get(&self.TelemetrySent), self.Get(&self.CommandsHandled), self.Get(&self.InvalidMessages))
}
