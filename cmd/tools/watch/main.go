// Command watch tails the manager's job event stream and prints one
// line per update. Useful alongside a long backfill.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/betedge/edgelake/internal/bus"
	"github.com/betedge/edgelake/pkg/stream"
)

func main() {
	urlFlag := flag.String("url", "ws://localhost:8080/v1/ws/jobs", "job stream endpoint")
	quietFlag := flag.Bool("quiet", false, "suppress connection state lines")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := stream.Config{URL: *urlFlag}
	if !*quietFlag {
		cfg.OnConnect = func() { log.Printf("connected to %s", *urlFlag) }
		cfg.OnDisconnect = func(err error) { log.Printf("stream dropped: %v", err) }
	}

	client, err := stream.New(cfg)
	if err != nil {
		log.Fatalf("new stream client: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = client.Run(ctx)
	}()

	client.Events().Run(ctx, printEvent)
	<-runDone

	if n := client.Dropped(); n > 0 {
		log.Printf("%d events dropped", n)
	}
}

func printEvent(ev bus.Event) {
	line := fmt.Sprintf("%s %-9s %d/%d", ev.JobID, ev.State, ev.Completed, ev.Total)
	if ev.Failures > 0 {
		line += fmt.Sprintf(" failures=%d", ev.Failures)
	}
	if ev.Err != "" {
		line += " " + ev.Err
	}
	fmt.Println(line)
}
