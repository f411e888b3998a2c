package main

import (
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/compat"
	"github.com/emberlog/ember/handlers"
)

// Example gnet event handler
type echoServer struct {
	gnet.BuiltinEventEngine
}

func (es *echoServer) OnTraffic(c gnet.Conn) gnet.Action {
	buf, _ := c.Next(-1)
	c.Write(buf)
	return gnet.None
}

func main() {
	sink, err := ember.NewBuilder().
		Factory(handlers.Create).
		MinimalLevelString("debug").
		TimerDuration(time.Second).
		Handler(&handlers.TextFileConfig{
			Path:            "/var/log/gnet",
			MaxCountPerFile: 10000,
			Format:          "json",
		}).
		Build()
	if err != nil {
		panic(err)
	}
	defer sink.Stop()

	gnetAdapter := compat.NewGnetAdapter(ember.NewMonitor(sink))

	// Configure gnet server with the adapter
	err = gnet.Run(
		&echoServer{},
		"tcp://127.0.0.1:9000",
		gnet.WithMulticore(true),
		gnet.WithLogger(gnetAdapter),
		gnet.WithReusePort(true),
	)
	if err != nil {
		panic(err)
	}
}
