// Package supervisor is the acquisition supervisor of spec.md §4.8: one
// top-level worker per protocol, parked on configuration-change events
// and coarse-grain restarted whenever a matching event arrives.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Hessdev-de/energy2mqtt/internal/config"
	"github.com/Hessdev-de/energy2mqtt/internal/discovery"
	"github.com/Hessdev-de/energy2mqtt/internal/dispatch"
	"github.com/Hessdev-de/energy2mqtt/internal/ingest"
	"github.com/Hessdev-de/energy2mqtt/internal/metrics"
	"github.com/Hessdev-de/energy2mqtt/internal/modbus"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// modbusStartupDelay absorbs further early configuration edits before the
// first poll cycle (spec.md §4.8).
const modbusStartupDelay = 5 * time.Second

// Supervisor wires configuration, the dispatch bridge, and the protocol
// workers together. One Supervisor is constructed per process.
type Supervisor struct {
	handle    *config.Handle
	bridge    *dispatch.Bridge
	namespace string
}

func New(handle *config.Handle, bridge *dispatch.Bridge, namespace string) *Supervisor {
	return &Supervisor{handle: handle, bridge: bridge, namespace: namespace}
}

// Run launches one worker goroutine per protocol under an errgroup, so a
// fatal worker error tears the whole group down; cancelling ctx stops all
// workers.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runModbusWorker(gctx) })
	g.Go(func() error { return s.runPassiveWorker(gctx, "oms") })
	g.Go(func() error { return s.runPassiveWorker(gctx, "sml") })
	g.Go(func() error { return s.runPassiveWorker(gctx, "iec62056") })
	g.Go(func() error { return s.runHeartbeat(gctx) })

	g.Go(func() error { return ingest.RunOMS(gctx, s.handle, s.bridge) })
	g.Go(func() error { return ingest.RunSML(gctx, s.bridge) })
	g.Go(func() error { return ingest.RunIEC62056(gctx, s.bridge) })

	return g.Wait()
}

// runModbusWorker (re-)spawns a Poller per configured hub, publishes the
// device count, and waits for either a matching configuration-change
// event (triggering a respawn) or context cancellation.
func (s *Supervisor) runModbusWorker(ctx context.Context) error {
	select {
	case <-time.After(modbusStartupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	changes := s.handle.Subscribe()

	for {
		pollers, deviceCount := s.spawnModbusPollers()
		s.publishDeviceCount("modbus", deviceCount)

		if !waitForMatch(ctx, changes, "modbus") {
			stopPollers(pollers)
			return ctx.Err()
		}
		stopPollers(pollers)
	}
}

// runPassiveWorker models spec.md §4.8's "a worker with no configured
// instances parks on the configuration-change channel and wakes only for
// events whose base matches its protocol": OMS, SML, and IEC-62056-21
// have no poll loop of their own (they are driven by inbound bus
// messages, see internal/bus), so this worker's only job is to keep the
// device-count metric current.
func (s *Supervisor) runPassiveWorker(ctx context.Context, base string) error {
	changes := s.handle.Subscribe()

	for {
		doc, err := s.handle.Snapshot()
		if err != nil {
			log.Warnf("supervisor: %s snapshot: %v", base, err)
		} else {
			s.publishDeviceCount(base, passiveDeviceCount(doc, base))
		}

		if !waitForMatch(ctx, changes, base) {
			return ctx.Err()
		}
	}
}

func passiveDeviceCount(doc config.Document, base string) int {
	switch base {
	case "oms":
		return len(doc.OMS)
	default:
		return 0
	}
}

func (s *Supervisor) spawnModbusPollers() ([]*modbus.Poller, int) {
	doc, err := s.handle.Snapshot()
	if err != nil {
		log.Warnf("supervisor: modbus snapshot: %v", err)
		return nil, 0
	}

	var pollers []*modbus.Poller
	deviceCount := 0
	for _, hubCfg := range doc.Modbus {
		hub := modbus.Hub{
			Name:  hubCfg.Name,
			Host:  hubCfg.Host,
			Port:  hubCfg.Port,
			Proto: modbus.TransportProto(hubCfg.Proto),
		}
		for _, devCfg := range hubCfg.Devices {
			interval, err := time.ParseDuration(devCfg.ReadInterval)
			if err != nil {
				log.Warnf("supervisor: hub %s device %s: invalid read_interval %q: %v", hubCfg.Name, devCfg.Name, devCfg.ReadInterval, err)
				continue
			}
			hub.Devices = append(hub.Devices, modbus.Device{
				Name:         devCfg.Name,
				SlaveID:      devCfg.SlaveID,
				Model:        devCfg.Model,
				ReadInterval: interval,
			})
			deviceCount++
		}
		if len(hub.Devices) == 0 {
			continue
		}

		poller, err := modbus.NewPoller(hub, s.bridge)
		if err != nil {
			log.Warnf("supervisor: spawning poller for hub %s: %v", hubCfg.Name, err)
			continue
		}
		poller.Start()
		pollers = append(pollers, poller)

		for _, devCfg := range hubCfg.Devices {
			rm, err := modbus.Load(devCfg.Model)
			if err != nil {
				continue
			}
			rec := discovery.BuildModbusDevice(s.namespace, devCfg.Name, rm)
			s.bridge.AutoDiscovery(rec)
		}
	}
	return pollers, deviceCount
}

func stopPollers(pollers []*modbus.Poller) {
	for _, p := range pollers {
		p.Stop()
	}
}

func (s *Supervisor) publishDeviceCount(protocol string, count int) {
	topic := fmt.Sprintf("mgt/%s/count", protocol)
	s.bridge.Publish(topic, []byte(fmt.Sprintf("%d", count)), 0, true)
	metrics.ProtocolDeviceCount.WithLabelValues(protocol).Set(float64(count))
}

// runHeartbeat publishes the retained uptime topic every 10 seconds
// (spec.md §6).
func (s *Supervisor) runHeartbeat(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			uptime := int64(time.Since(start).Seconds())
			s.bridge.Publish("mgt/uptime", []byte(fmt.Sprintf("%d", uptime)), 0, true)
			metrics.UptimeSeconds.Set(float64(uptime))
		}
	}
}

// waitForMatch blocks until a ChangeEvent with Base == base, or a blanket
// "config"/"file" reload event, arrives (returning true to trigger a
// respawn) or ctx is cancelled (returning false). Events for other
// protocols are ignored.
func waitForMatch(ctx context.Context, changes <-chan config.ChangeEvent, base string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev := <-changes:
			if ev.Base == base || ev.Base == "config" || ev.Base == "file" {
				return true
			}
		}
	}
}
