package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/hydro/cmd/hydro/console"
	"github.com/temoto/hydro/cmd/hydro/ec"
	"github.com/temoto/hydro/cmd/hydro/run"
	"github.com/temoto/hydro/cmd/hydro/subcmd"
	"github.com/temoto/hydro/internal/state"
	"github.com/temoto/hydro/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X
var log = log2.NewStderr(log2.LDebug)
var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	ec.CalibrateMod,
	ec.ResetMod,
}

func main() {
	flagConfig := flag.String("config", "hydro.hcl", "")
	flagDebug := flag.Bool("debug", false, "debug log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [option] command\n\nCommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %-14s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(flag.CommandLine.Output(), "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if !*flagDebug {
		log.SetLevel(log2.LInfo)
	}

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	log.Debugf("config=%+v", config)

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	if err := mod.Main(ctx, config); err != nil && errors.Cause(err) != context.Canceled {
		log.Fatalf("%s\n%s", mod.Name, errors.ErrorStack(err))
	}
	log.Infof("%s done", mod.Name)
}
