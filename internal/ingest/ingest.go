// Package ingest connects the inbound bus topics spec.md §6 names
// (oms_input, sml_input, iec62056_input, mgt/command) to the protocol
// decoders: it is the consumer side of internal/dispatch's Deliver/Subscribe
// registry, decoding each delivered payload into a record.Record and
// handing it to the dispatch bridge.
package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hessdev-de/energy2mqtt/internal/config"
	"github.com/Hessdev-de/energy2mqtt/internal/iec62056"
	"github.com/Hessdev-de/energy2mqtt/internal/metrics"
	"github.com/Hessdev-de/energy2mqtt/internal/oms"
	"github.com/Hessdev-de/energy2mqtt/internal/record"
	"github.com/Hessdev-de/energy2mqtt/internal/sml"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// Bridge is the narrow slice of *dispatch.Bridge ingest needs: register
// for inbound deliveries, and publish the decoded result.
type Bridge interface {
	Subscribe(topic string, delivery chan<- []byte)
	Metering(rec *record.Record)
}

// RunOMS decodes every hex-encoded payload delivered on "oms_input"
// against the configured device table and publishes the result.
func RunOMS(ctx context.Context, handle *config.Handle, bridge Bridge) error {
	ch := make(chan []byte, 16)
	bridge.Subscribe("oms_input", ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			telegram, err := hex.DecodeString(strings.TrimSpace(string(payload)))
			if err != nil {
				log.Warnf("ingest: oms_input payload is not valid hex: %v", err)
				metrics.DecodeErrorsTotal.WithLabelValues("oms").Inc()
				continue
			}

			rec, err := oms.Decode(telegram, true, omsLookup(handle))
			if err != nil {
				log.Warnf("ingest: decoding OMS telegram: %v", err)
				metrics.DecodeErrorsTotal.WithLabelValues("oms").Inc()
				continue
			}
			bridge.Metering(rec)
		}
	}
}

func omsLookup(handle *config.Handle) oms.DeviceLookup {
	return func(dinAddress string) (oms.Device, bool) {
		doc, err := handle.Snapshot()
		if err != nil {
			return oms.Device{}, false
		}
		for _, d := range doc.OMS {
			if d.DinAddress != dinAddress {
				continue
			}
			key, err := hex.DecodeString(d.Key)
			if err != nil {
				log.Warnf("ingest: oms device %s has invalid hex key: %v", d.Name, err)
				return oms.Device{}, false
			}
			return oms.Device{Name: d.Name, Key: key}, true
		}
		return oms.Device{}, false
	}
}

// RunSML decodes every hex-encoded SML frame delivered on "sml_input"
// and publishes one record per GetListResponse found in the frame.
func RunSML(ctx context.Context, bridge Bridge) error {
	ch := make(chan []byte, 16)
	bridge.Subscribe("sml_input", ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			frame, err := hex.DecodeString(strings.TrimSpace(string(payload)))
			if err != nil {
				log.Warnf("ingest: sml_input payload is not valid hex: %v", err)
				metrics.DecodeErrorsTotal.WithLabelValues("sml").Inc()
				continue
			}

			messages, err := sml.ParseFile(frame)
			if err != nil {
				log.Warnf("ingest: parsing SML frame: %v", err)
				metrics.DecodeErrorsTotal.WithLabelValues("sml").Inc()
				continue
			}
			for _, msg := range messages {
				if msg.List == nil {
					continue
				}
				rec := smlRecord(msg.List)
				bridge.Metering(rec)
			}
		}
	}
}

func smlRecord(list *sml.GetListResponse) *record.Record {
	rec := record.New(uuid.NewString(), list.ServerID, record.ProtocolSML, time.Now().Unix())
	for _, v := range list.Values {
		rec.MeteredValues.Set(v.Obis.String(), v.Value)
		if v.Unit != "" {
			rec.MeteredValues.Set(v.Obis.String()+"_unit", v.Unit)
		}
	}
	return rec
}

// RunIEC62056 decodes every ASCII telegram delivered on "iec62056_input"
// and publishes a record built from its OBIS data lines.
func RunIEC62056(ctx context.Context, bridge Bridge) error {
	ch := make(chan []byte, 16)
	bridge.Subscribe("iec62056_input", ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			telegram, skipped, err := iec62056.Parse(string(payload))
			if err != nil {
				log.Warnf("ingest: parsing IEC 62056-21 telegram: %v", err)
				metrics.DecodeErrorsTotal.WithLabelValues("iec62056").Inc()
				continue
			}
			if skipped > 0 {
				log.Warnf("ingest: IEC 62056-21 telegram skipped %d malformed data line(s)", skipped)
			}

			rec := record.New(uuid.NewString(), telegram.Identification.Raw, record.ProtocolIEC62056, time.Now().Unix())
			for k, v := range telegram.Values() {
				rec.MeteredValues.Set(k, v)
			}
			bridge.Metering(rec)
		}
	}
}

// RunCommands watches "mgt/command" for the literal payload "restart" and
// cancels the supervisor's context on receipt (spec.md §6), letting
// cmd/e2m-gateway's main loop perform a clean shutdown for its process
// supervisor (systemd, docker) to restart.
func RunCommands(ctx context.Context, bridge Bridge, cancel context.CancelFunc) error {
	ch := make(chan []byte, 4)
	bridge.Subscribe("mgt/command", ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			if strings.TrimSpace(string(payload)) == "restart" {
				log.Infof("ingest: restart requested via mgt/command")
				cancel()
				return fmt.Errorf("ingest: restart requested")
			}
		}
	}
}
