package state

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/hydro/log2"
)

// NewTestContext returns initialized Global with config from confString.
// Use `hardware { mock = true }` unless test provides real GPIO.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("hydro_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.BuildVersion = "test"
	cfg, err := ReadConfig(log, fs, "test-inline")
	if err != nil {
		t.Fatal(err)
	}
	if err = g.Init(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	return ctx, g
}
