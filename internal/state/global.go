package state

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/tele"
	"github.com/temoto/hydro/internal/tele/transport"
	"github.com/temoto/hydro/internal/telemetry"
	"github.com/temoto/hydro/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Registry     *telemetry.Registry
	Tele         *tele.Session // nil when tele.enabled=false

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = "./tmp-hydro-db"
		g.Log.Errorf("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)

	g.Hardware.log = g.Log.Clone(log2.ParseLevel(g.Config.Hardware.LogDebug))
	if g.Config.Hardware.Mock {
		g.Log.Infof("config: hardware.mock=true, GPIO and I2C are not used")
	}
	g.Registry = telemetry.NewRegistry(g.Hardware.log)

	errs := make([]error, 0, 3)
	if err := g.initActuators(); err != nil {
		errs = append(errs, err)
	}
	if err := g.initSensors(); err != nil {
		errs = append(errs, err)
	}
	if err := g.initTele(); err != nil {
		errs = append(errs, errors.Annotate(err, "tele init"))
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) initTele() error {
	c := &g.Config.Tele
	if !c.Enabled {
		g.Log.Infof("tele disabled")
		return nil
	}
	log := g.Log.Clone(log2.ParseLevel(c.LogDebug))
	tr, err := transport.New(c, log)
	if err != nil {
		return err
	}
	g.Tele = tele.NewSession(tele.OptionsFromConfig(c), tr, g.Registry, log)
	return nil
}

// RunTele blocks until ctx is done or Alive is stopped.
func (g *Global) RunTele(ctx context.Context) error {
	if g.Tele == nil {
		return nil
	}
	if !g.Alive.Add(1) {
		return nil
	}
	defer g.Alive.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()
	return g.Tele.Run(ctx)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Shutdown()
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown leaves hardware in safe state: every actuator and sensor power off.
// Call after session and console have stopped.
func (g *Global) Shutdown() {
	if g.Registry != nil {
		if err := g.Registry.DeactivateAll(); err != nil {
			g.Log.Errorf("CRITICAL shutdown deactivate err=%v", err)
		} else {
			g.Log.Infof("all actuators deactivated")
		}
	}
	g.Error(g.closeHardware(), "shutdown")
}
