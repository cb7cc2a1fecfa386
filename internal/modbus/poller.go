package modbus

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/expr-lang/expr"
	"github.com/go-co-op/gocron/v2"
	goburrow "github.com/goburrow/modbus"
	"github.com/google/uuid"

	"github.com/Hessdev-de/energy2mqtt/internal/record"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// TransportProto selects the Modbus wire framing used to reach a hub.
type TransportProto string

const (
	ProtoTCP        TransportProto = "TCP"
	ProtoRTU        TransportProto = "RTU"
	ProtoRTUoverTCP TransportProto = "RTUoverTCP"
)

const (
	maxHubTick  = 60 * time.Second
	readRetries = 3
	retryDelay  = time.Second
)

// Device is one configured Modbus meter polled on a hub.
type Device struct {
	Name         string
	SlaveID      byte
	Model        string
	ReadInterval time.Duration

	registerMap RegisterMap
	counter     int
	waitsTill   int
}

// Hub is one configured Modbus connection target; every device reachable
// through it shares the hub's endpoint and a common tick, and each device
// read opens its own connection.
type Hub struct {
	Name    string
	Host    string
	Port    int
	Proto   TransportProto
	Devices []Device
}

// Publisher is the narrow slice of the dispatch bridge the poller needs:
// emitting a decoded record.
type Publisher interface {
	PublishRecord(r *record.Record)
}

// Poller runs one hub's tick loop. Each poller owns an independent gocron
// scheduler so the supervisor can abort and recreate it wholesale on
// configuration change (spec.md §4.8's coarse-grained restart).
type Poller struct {
	hub       Hub
	publisher Publisher
	scheduler gocron.Scheduler
}

// NewPoller loads each device's register map and computes the hub tick
// (spec.md §4.6): the minimum configured read_interval across devices,
// bounded above at 60 seconds.
func NewPoller(hub Hub, publisher Publisher) (*Poller, error) {
	if hub.Proto == ProtoRTU {
		log.Warnf("modbus: hub %s declares RTU transport, which is not implemented; it will produce no readings", hub.Name)
	}

	tick := maxHubTick
	for i := range hub.Devices {
		d := &hub.Devices[i]
		rm, err := Load(d.Model)
		if err != nil {
			return nil, fmt.Errorf("modbus: hub %s device %s: %w", hub.Name, d.Name, err)
		}
		d.registerMap = rm
		if d.ReadInterval > 0 && d.ReadInterval < tick {
			tick = d.ReadInterval
		}
	}

	for i := range hub.Devices {
		d := &hub.Devices[i]
		waits := int(math.Ceil(float64(d.ReadInterval) / float64(tick)))
		if waits < 1 {
			waits = 1
		}
		effective := time.Duration(waits) * tick
		if effective != d.ReadInterval {
			log.Warnf("modbus: hub %s device %s: read_interval %s rounded up to %s (hub tick %s)",
				hub.Name, d.Name, d.ReadInterval, effective, tick)
		}
		d.waitsTill = waits
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("modbus: creating scheduler: %w", err)
	}

	p := &Poller{hub: hub, publisher: publisher, scheduler: scheduler}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(tick),
		gocron.NewTask(p.tick),
	); err != nil {
		return nil, fmt.Errorf("modbus: registering tick job: %w", err)
	}
	return p, nil
}

// Start begins the hub's tick loop.
func (p *Poller) Start() {
	p.scheduler.Start()
}

// Stop aborts the hub's tick loop. Part of the supervisor's coarse-grained
// restart: in-flight reads may be dropped without emitting a partial record.
func (p *Poller) Stop() {
	_ = p.scheduler.Shutdown()
}

func (p *Poller) tick() {
	if p.hub.Proto == ProtoRTU {
		return
	}
	for i := range p.hub.Devices {
		d := &p.hub.Devices[i]
		d.counter++
		if d.counter < d.waitsTill {
			continue
		}
		d.counter = 0
		p.readDevice(d)
	}
}

func (p *Poller) readDevice(d *Device) {
	client, closeFn, err := p.dial()
	if err != nil {
		log.Errorf("modbus: hub %s device %s: connect failed: %v", p.hub.Name, d.Name, err)
		return
	}
	defer closeFn()

	values := make(map[string]float64, len(d.registerMap.Registers))
	now := time.Now().Unix()
	rec := record.New(uuid.NewString(), d.Name, record.ProtocolModbusTCP, now)

	for _, reg := range d.registerMap.Registers {
		raw, err := p.readRegisterWithRetry(client, reg)
		if err != nil {
			log.Warnf("modbus: hub %s device %s register %s: %v", p.hub.Name, d.Name, reg.Name, err)
			continue
		}

		scaled := float32(math.Round(float64(raw) * scalerOrDefault(reg.Scaler)))
		values[reg.Name] = float64(scaled)

		rec.MeteredValues.Set(reg.Name, applyMapping(reg.Mappings, scaled))
		if reg.UnitOfMeasurement != "" {
			rec.MeteredValues.Set(reg.Name+"_unit", reg.UnitOfMeasurement)
		}
	}

	for _, tmpl := range d.registerMap.Templates {
		result, err := evalTemplate(tmpl, values)
		if err != nil {
			log.Warnf("modbus: hub %s device %s template %s: %v", p.hub.Name, d.Name, tmpl.Name, err)
			result = 0.0
		}
		rec.MeteredValues.Set(tmpl.Name, result)
		if tmpl.UnitOfMeasurement != "" {
			rec.MeteredValues.Set(tmpl.Name+"_unit", tmpl.UnitOfMeasurement)
		}
	}

	if p.publisher != nil {
		p.publisher.PublishRecord(rec)
	}
}

// dial opens a fresh connection for the duration of one device read, per
// spec.md §4.6's "each Modbus poll owns its TCP connection for the
// duration of one tick" resource-ownership rule. RTUoverTCP reuses the TCP
// ADU handler: goburrow/modbus's RTU handler targets serial ports, not
// sockets, so a true RTU-framed-over-TCP transport is outside what the
// library offers off the shelf.
func (p *Poller) dial() (goburrow.Client, func(), error) {
	addr := fmt.Sprintf("%s:%d", p.hub.Host, p.hub.Port)

	h := goburrow.NewTCPClientHandler(addr)
	h.Timeout = 5 * time.Second
	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	client := goburrow.NewClient(h)
	return client, func() { _ = h.Close() }, nil
}

func (p *Poller) readRegisterWithRetry(client goburrow.Client, reg Register) (uint32, error) {
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		raw, err := readRegister(client, reg)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func readRegister(client goburrow.Client, reg Register) (uint32, error) {
	var words []byte
	var err error

	switch reg.InputType {
	case Holding:
		words, err = client.ReadHoldingRegisters(reg.Address, reg.Length)
	case Input:
		words, err = client.ReadInputRegisters(reg.Address, reg.Length)
	case Coil:
		words, err = client.ReadCoils(reg.Address, reg.Length)
	default:
		return 0, fmt.Errorf("unknown input_type %q", reg.InputType)
	}
	if err != nil {
		return 0, err
	}

	switch reg.Format {
	case Int32:
		if len(words) < 4 {
			return 0, fmt.Errorf("expected 4 bytes for Int32, got %d", len(words))
		}
		hi := uint32(words[0])<<8 | uint32(words[1])
		lo := uint32(words[2])<<8 | uint32(words[3])
		return hi<<16 | lo, nil
	default: // Int16
		if len(words) < 2 {
			return 0, fmt.Errorf("expected 2 bytes for Int16, got %d", len(words))
		}
		return uint32(words[0])<<8 | uint32(words[1]), nil
	}
}

func scalerOrDefault(scaler float64) float64 {
	if scaler == 0 {
		return 1.0
	}
	return scaler
}

// applyMapping finds the first mapping whose data equals the decimal
// representation of scaled, falling back to the "_" wildcard and finally
// the raw numeric value (spec.md §4.6, testable property 7).
func applyMapping(mappings []Mapping, scaled float32) any {
	decimal := strconv.FormatFloat(float64(scaled), 'f', -1, 32)
	var wildcard *Mapping
	for i, m := range mappings {
		if m.Data == "_" {
			wildcard = &mappings[i]
			continue
		}
		if m.Data == decimal {
			return m.Mapping
		}
	}
	if wildcard != nil {
		return wildcard.Mapping
	}
	return scaled
}

// evalTemplate evaluates a template's expression against the physical
// register values read this tick. Per testable property 8, only physical
// registers are bound; a template referencing another template's name
// evaluates against no binding for that name and fails (the caller then
// substitutes 0.0).
func evalTemplate(tmpl Template, physical map[string]float64) (float64, error) {
	env := make(map[string]any, len(physical))
	for k, v := range physical {
		env[k] = v
	}

	program, err := expr.Compile(tmpl.Value, expr.Env(env))
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, err
	}

	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("template %s did not evaluate to a number", tmpl.Name)
	}
}

