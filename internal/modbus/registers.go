// Package modbus polls Modbus-TCP/RTU-over-TCP hubs on a fixed cadence,
// decodes physical and template registers, and emits uniform records.
package modbus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// InputType selects the Modbus function used to read a register.
type InputType string

const (
	Holding InputType = "Holding"
	Input   InputType = "Input"
	Coil    InputType = "Coil"
)

// Format selects how consecutive 16-bit words compose into a value.
type Format string

const (
	Int16 Format = "Int16"
	Int32 Format = "Int32"
)

// Platform is the discovery component kind a register presents as.
type Platform string

const (
	Sensor       Platform = "Sensor"
	BinarySensor Platform = "BinarySensor"
	Button       Platform = "Button"
)

// Mapping replaces an exact scaled value (or the wildcard "_") with a
// presentation value.
type Mapping struct {
	Data    string `yaml:"data"`
	Mapping any    `yaml:"mapping"`
}

// Register is one physical register descriptor.
type Register struct {
	Name              string    `yaml:"name"`
	InputType         InputType `yaml:"input_type"`
	Address           uint16    `yaml:"register"`
	Length            uint16    `yaml:"length"`
	Format            Format    `yaml:"format"`
	Scaler            float64   `yaml:"scaler"`
	UnitOfMeasurement string    `yaml:"unit_of_measurement"`
	DeviceClass       string    `yaml:"device_class"`
	StateClass        string    `yaml:"state_class"`
	Platform          Platform  `yaml:"platform"`
	Mappings          []Mapping `yaml:"mappings"`
}

// Template is a derived register computed from an expression over
// previously-read physical register values.
type Template struct {
	Name              string  `yaml:"name"`
	Value             string  `yaml:"value"`
	UnitOfMeasurement string  `yaml:"unit_of_measurement"`
	DeviceClass       string  `yaml:"device_class"`
	StateClass        string  `yaml:"state_class"`
	Platform          Platform `yaml:"platform"`
}

// RegisterMap is a loaded per-model document.
type RegisterMap struct {
	Manufacturer string     `yaml:"manufacturer"`
	Model        string     `yaml:"model"`
	Registers    []Register `yaml:"registers"`
	Templates    []Template `yaml:"templates"`
}

// Load reads config/modbus/<model>.yaml (a user override), falling back to
// defs/modbus/<model>.yaml (the bundled definition). A missing file on both
// paths yields an empty register set and a logged error rather than a
// hard failure — the device stays configured but produces no readings.
func Load(model string) (RegisterMap, error) {
	paths := []string{
		fmt.Sprintf("config/modbus/%s.yaml", model),
		fmt.Sprintf("defs/modbus/%s.yaml", model),
	}

	var lastErr error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var rm RegisterMap
		if err := yaml.Unmarshal(data, &rm); err != nil {
			return RegisterMap{}, fmt.Errorf("modbus: parsing %s: %w", path, err)
		}
		if err := rm.validate(); err != nil {
			return RegisterMap{}, fmt.Errorf("modbus: %s: %w", path, err)
		}
		return rm, nil
	}

	log.Errorf("modbus: no register map found for model %q: %v", model, lastErr)
	return RegisterMap{}, nil
}

// validate enforces that register names are unique. Template expressions
// are not checked here; a template naming anything other than a physical
// register fails when evalTemplate runs it.
func (rm RegisterMap) validate() error {
	seen := make(map[string]bool, len(rm.Registers))
	for _, r := range rm.Registers {
		if seen[r.Name] {
			return fmt.Errorf("duplicate register name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
