// Demo: a sink with a rotating text file handler and a console mirror.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/handlers"
)

func main() {
	sink, err := ember.NewBuilder().
		Factory(handlers.Create).
		MinimalLevelString("debug").
		TimerDuration(250 * time.Millisecond).
		Handler(&handlers.TextFileConfig{
			Path:            "./logs",
			MaxCountPerFile: 100,
			LastRunFileName: "LastRun.log",
		}).
		Handler(&handlers.ConsoleConfig{Target: "stdout"}).
		StderrFallback(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}

	monitor := ember.NewMonitor(sink)
	monitor.Info("demo starting")
	for i := 0; i < 25; i++ {
		monitor.Info("event", i)
	}
	monitor.SendIdentityUpdate(`{"app":"demo","version":"1.0.0"}`)
	monitor.Warn("almost done")

	if err := sink.SyncWait(time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
	}
	fmt.Printf("identity: %s\n", sink.Identity().FullText())

	if err := sink.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}
