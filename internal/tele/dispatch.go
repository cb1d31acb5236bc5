package tele

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/temoto/hydro/internal/telemetry"
)

// Dispatch handles one inbound message and returns response payload.
// nil means no response: blank message, unknown action or unknown actuator.
func (self *Session) Dispatch(ctx context.Context, b []byte) []byte {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	var cmd Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		self.stat.inc(&self.stat.InvalidMessages)
		self.log.Debugf("tele invalid message=%q err=%v", b, err)
		return self.marshal(ErrorResponse{Error: "Invalid JSON", Details: err.Error()})
	}
	self.stat.inc(&self.stat.CommandsHandled)
	self.log.Debugf("tele command %#v", cmd)

	switch cmd.Action {
	case ActionActivate, ActionDeactivate:
		return self.cmdActuator(cmd)

	case ActionGetReading:
		data, err := self.agg.Gather(ctx, cmd.Sensor)
		if err != nil {
			return self.marshal(ReadingResponse{Status: ReadingError, Message: err.Error()})
		}
		return self.marshal(ReadingResponse{Status: ReadingReceived, Sensor: cmd.Sensor, Data: data})

	case ActionGetStatus:
		return self.marshal(self.agg.Snapshot(ctx))

	default:
		self.log.Debugf("tele ignore unknown action=%q", cmd.Action)
		return nil
	}
}

func (self *Session) cmdActuator(cmd Command) []byte {
	a, err := self.agg.Actuator(cmd.Actuator)
	if err != nil {
		self.log.Errorf("tele action=%s %v", cmd.Action, err)
		return nil
	}
	if cmd.Action == ActionActivate {
		err = a.Activate()
	} else {
		err = a.Deactivate()
	}
	if err != nil {
		self.log.Errorf("tele action=%s err=%v", cmd.Action, errors.ErrorStack(err))
		return self.marshal(ReadingResponse{Status: ReadingError, Message: err.Error()})
	}
	return []byte(a.Name() + " " + cmd.Action + "d")
}

func (self *Session) marshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// only possible with NaN/Inf values which device.Field.Check rejects
		self.log.Errorf("CRITICAL tele marshal v=%#v err=%v", v, err)
		return nil
	}
	return b
}

var _ Aggregator = (*telemetry.Registry)(nil)
