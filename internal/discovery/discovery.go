// Package discovery builds the discovery-metadata record spec.md §4.9
// describes for each configured Modbus device: identity, state topic, and
// one component per register, value-templated to the key the register
// occupies in the uniform record. OMS, SML, and IEC-62056-21 devices are
// not synthesized here — their discovery metadata is external, per the
// same section.
package discovery

import (
	"fmt"

	"github.com/Hessdev-de/energy2mqtt/internal/modbus"
	"github.com/Hessdev-de/energy2mqtt/internal/record"
)

// Component describes one register or template as a single addressable
// entity, in the shape a discovery-consuming controller expects.
type Component struct {
	Key               string `json:"key"`
	Name              string `json:"name"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Platform          string `json:"platform"`
	ValueTemplate     string `json:"value_template"`
}

// Record is one device's discovery metadata.
type Record struct {
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	Protocol     string      `json:"protocol"`
	StateTopic   string      `json:"state_topic"`
	Components   []Component `json:"components"`
}

// BuildModbusDevice constructs a discovery Record for a configured Modbus
// device from its loaded register map. namespace is the application's
// MQTT topic prefix (spec.md §6).
func BuildModbusDevice(namespace, deviceName string, rm modbus.RegisterMap) *Record {
	rec := &Record{
		Name:         deviceName,
		Manufacturer: rm.Manufacturer,
		Model:        rm.Model,
		Protocol:     record.ProtocolModbusTCP.String(),
		StateTopic:   fmt.Sprintf("%s/devs/%s/%s", namespace, record.ProtocolModbusTCP.String(), deviceName),
	}

	for _, reg := range rm.Registers {
		rec.Components = append(rec.Components, Component{
			Key:               reg.Name,
			Name:              reg.Name,
			UnitOfMeasurement: reg.UnitOfMeasurement,
			DeviceClass:       reg.DeviceClass,
			StateClass:        reg.StateClass,
			Platform:          string(reg.Platform),
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", reg.Name),
		})
	}
	for _, tmpl := range rm.Templates {
		rec.Components = append(rec.Components, Component{
			Key:               tmpl.Name,
			Name:              tmpl.Name,
			UnitOfMeasurement: tmpl.UnitOfMeasurement,
			DeviceClass:       tmpl.DeviceClass,
			StateClass:        tmpl.StateClass,
			Platform:          string(tmpl.Platform),
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", tmpl.Name),
		})
	}

	return rec
}

// Topic renders the retained discovery-record topic for rec, per
// spec.md §6: homeassistant/device/e2m_<protocol>-<name>/config.
func (r *Record) Topic() string {
	return fmt.Sprintf("homeassistant/device/e2m_%s-%s/config", r.Protocol, r.Name)
}
