// Package run is production mode: hardware init, tele session until signal.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/hydro/cmd/hydro/subcmd"
	"github.com/temoto/hydro/internal/state"
)

const stopTimeout = 10 * time.Second

var Mod = subcmd.Mod{Name: "run", Usage: "connect to backend, serve telemetry and commands", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	if err := initialOff(g); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			g.Log.Infof("signal=%v stopping", s)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("hydro init complete sensors=%d actuators=%d", len(g.Registry.Sensors()), len(g.Registry.Actuators()))

	var err error
	if g.Tele == nil {
		g.Log.Infof("tele disabled, idle until signal")
		<-g.Alive.StopChan()
	} else {
		err = g.RunTele(ctx)
	}

	subcmd.SdNotify(daemon.SdNotifyStopping)
	if !g.StopWait(stopTimeout) {
		g.Log.Errorf("stop timeout=%v, deactivating anyway", stopTimeout)
	}
	g.Shutdown()
	if g.Tele != nil {
		g.Log.Infof("tele stat %s", g.Tele.Stat().String())
	}
	return err
}

// initialOff puts power rails and pumps into known state.
// On failure hardware is released with another deactivate attempt.
func initialOff(g *state.Global) error {
	if err := g.Registry.DeactivateAll(); err != nil {
		g.Shutdown()
		return errors.Annotate(err, "initial deactivate")
	}
	return nil
}
