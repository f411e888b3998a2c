package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/compat"
	"github.com/emberlog/ember/handlers"
)

func main() {
	sink, err := ember.NewBuilder().
		Factory(handlers.Create).
		TimerDuration(time.Second).
		Handler(&handlers.TextFileConfig{
			Path:            "/var/log/fasthttp",
			MaxCountPerFile: 10000,
		}).
		Build()
	if err != nil {
		panic(err)
	}
	defer sink.Stop()

	// Create fasthttp adapter with custom level detection
	fasthttpAdapter := compat.NewFastHTTPAdapter(
		ember.NewMonitor(sink),
		compat.WithDefaultLevel(ember.LevelInfo),
		compat.WithLevelDetector(customLevelDetector),
	)

	// Configure fasthttp server
	server := &fasthttp.Server{
		Handler: requestHandler,
		Logger:  fasthttpAdapter,

		// Other server settings
		Name:              "EmberServer",
		Concurrency:       fasthttp.DefaultConcurrency,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		TCPKeepalive:      true,
		ReduceMemoryUsage: true,
	}

	// Start server
	fmt.Println("Starting server on :8080")
	if err := server.ListenAndServe(":8080"); err != nil {
		panic(err)
	}
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain")
	fmt.Fprintf(ctx, "Hello, world! Path: %s\n", ctx.Path())
}

func customLevelDetector(msg string) int64 {
	// Can inspect specific fasthttp message patterns
	if strings.Contains(msg, "connection cannot be served") {
		return ember.LevelWarn
	}
	if strings.Contains(msg, "error when serving connection") {
		return ember.LevelError
	}

	// Use default detection
	return compat.DetectLogLevel(msg)
}
