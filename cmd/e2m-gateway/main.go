// Command e2m-gateway is the process entry point: it loads configuration,
// connects the message bus, starts the dispatch bridge, the acquisition
// supervisor, and the HTTP surface, then blocks until signalled to stop.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hessdev-de/energy2mqtt/internal/bus"
	"github.com/Hessdev-de/energy2mqtt/internal/config"
	"github.com/Hessdev-de/energy2mqtt/internal/dispatch"
	"github.com/Hessdev-de/energy2mqtt/internal/httpapi"
	"github.com/Hessdev-de/energy2mqtt/internal/ingest"
	"github.com/Hessdev-de/energy2mqtt/internal/supervisor"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

const namespace = "energy2mqtt"

var (
	flagLogLevel    string
	flagLogDateTime bool
	flagHTTPAddr    string
)

func cliInit() {
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err]`")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagHTTPAddr, "http", ":8080", "Address the /healthz and /metrics HTTP server listens on")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	handle, err := config.Load()
	if err != nil {
		log.Fatalf("main: loading configuration: %v", err)
	}

	doc, err := handle.Snapshot()
	if err != nil {
		log.Fatalf("main: snapshotting configuration: %v", err)
	}

	bridge := dispatch.NewBridge(namespace, nil)

	client, err := bus.Connect(doc.MQTT, namespace, bridge)
	if err != nil {
		log.Fatalf("main: connecting to message bus: %v", err)
	}
	defer client.Disconnect()
	bridge.SetPublisher(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bridge.Run(ctx)

	stopWatch := make(chan struct{})
	if err := handle.Watch(stopWatch); err != nil {
		log.Warnf("main: starting configuration file watcher: %v", err)
	}
	defer close(stopWatch)

	httpAddr := doc.Httpd.Addr
	if httpAddr == "" {
		httpAddr = flagHTTPAddr
	}
	httpSrv := httpapi.New(httpAddr)
	httpSrv.Start()
	defer httpSrv.Shutdown()

	sup := supervisor.New(handle, bridge, namespace)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() { errc <- sup.Run(ctx) }()
	go func() { _ = ingest.RunCommands(ctx, bridge, cancel) }()

	select {
	case s := <-sig:
		log.Infof("main: received signal %s, shutting down", s)
		cancel()
	case err := <-errc:
		log.Errorf("main: supervisor exited: %v", err)
		cancel()
	}

	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		log.Warnf("main: supervisor did not shut down within grace period")
	}
}
