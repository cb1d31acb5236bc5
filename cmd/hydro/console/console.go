// Package console is bench tool: operate actuators and read sensors without backend.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/hydro/cmd/hydro/subcmd"
	"github.com/temoto/hydro/helpers/cli"
	"github.com/temoto/hydro/internal/state"
	"github.com/temoto/hydro/internal/telemetry"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive actuator/sensor console", Main: Main}

const help = `commands:
  activate NAME      turn actuator on
  deactivate NAME    turn actuator off
  read NAME|all      power cycle and read sensor(s)
  status             actuator states and last sensor status
  help               this text`

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)
	defer g.Shutdown()

	g.Log.Debugf("console init complete, running")
	cli.MainLoop(modName, newExecutor(ctx), newCompleter(ctx), g.Shutdown)
	return nil
}

func newCompleter(ctx context.Context) func(d prompt.Document) []prompt.Suggest {
	g := state.GetGlobal(ctx)
	suggests := []prompt.Suggest{
		{Text: "activate"},
		{Text: "deactivate"},
		{Text: "read"},
		{Text: "status"},
		{Text: "help"},
	}
	names := []prompt.Suggest{{Text: telemetry.SelectorAll}}
	for _, s := range g.Registry.Sensors() {
		names = append(names, prompt.Suggest{Text: s.Name(), Description: "sensor"})
	}
	for _, a := range g.Registry.Actuators() {
		names = append(names, prompt.Suggest{Text: a.Name(), Description: "actuator"})
	}
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return prompt.FilterHasPrefix(names, d.GetWordBeforeCursor(), true)
		}
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		out, err := Execute(ctx, line)
		if err != nil {
			g.Log.Errorf("%s", err)
			return
		}
		if out != "" {
			g.Log.Info(out)
		}
	}
}

// Execute runs one console command and returns human readable result.
func Execute(ctx context.Context, line string) (string, error) {
	g := state.GetGlobal(ctx)
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	cmd, args := parts[0], parts[1:]
	arg := func() (string, error) {
		if len(args) != 1 {
			return "", errors.NotValidf("%s expects 1 argument, got %d", cmd, len(args))
		}
		return args[0], nil
	}

	switch cmd {
	case "help", "?":
		return help, nil

	case "activate", "deactivate":
		name, err := arg()
		if err != nil {
			return "", err
		}
		a, err := g.Registry.Actuator(name)
		if err != nil {
			return "", err
		}
		if cmd == "activate" {
			err = a.Activate()
		} else {
			err = a.Deactivate()
		}
		if err != nil {
			return "", errors.Annotatef(err, "%s %s", cmd, name)
		}
		return fmt.Sprintf("%s %s", name, a.State()), nil

	case "read":
		selector := telemetry.SelectorAll
		if len(args) > 0 {
			var err error
			if selector, err = arg(); err != nil {
				return "", err
			}
		}
		data, err := g.Registry.Gather(ctx, selector)
		if err != nil {
			return "", err
		}
		b, err := json.MarshalIndent(data, "", "  ")
		return string(b), err

	case "status":
		return status(g), nil
	}
	return "", errors.NotSupportedf("command=%q (try help)", cmd)
}

func status(g *state.Global) string {
	lines := make([]string, 0, 8)
	for name, s := range g.Registry.ActuatorStatus() {
		lines = append(lines, fmt.Sprintf("actuator %s %s", name, s))
	}
	sort.Strings(lines)
	for _, s := range g.Registry.Sensors() {
		lines = append(lines, fmt.Sprintf("sensor %s %s", s.Name(), s.Status()))
	}
	return strings.Join(lines, "\n")
}
