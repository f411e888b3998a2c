// Stress: many producer monitors hammering one sink with rotation and
// gzip enabled, then a clean drain.
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/handlers"
)

const (
	producers         = 8
	eventsPerProducer = 5000
)

func main() {
	sink, err := ember.NewBuilder().
		Factory(handlers.Create).
		TimerDuration(100 * time.Millisecond).
		Handler(&handlers.TextFileConfig{
			Path:                     "./stress-logs",
			MaxCountPerFile:          1000,
			UseGzip:                  true,
			MaxCurrentLogFolderCount: 3,
		}).
		Handler(&handlers.MetricsConfig{Namespace: "stress"}).
		StderrFallback(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stress: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			monitor := ember.NewMonitor(sink)
			for i := 0; i < eventsPerProducer; i++ {
				monitor.Info("producer", p, "event", i)
			}
		}(p)
	}
	wg.Wait()

	if err := sink.SyncWait(30 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "stress: %v\n", err)
	}
	elapsed := time.Since(start)

	stats := sink.Stats()
	fmt.Printf("submitted=%d dispatched=%d released=%d in %v (%.0f events/s)\n",
		stats.Submitted, stats.Dispatched, stats.Released, elapsed,
		float64(stats.Dispatched)/elapsed.Seconds())

	if err := sink.Stop(10 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "stress: %v\n", err)
		os.Exit(1)
	}
}
