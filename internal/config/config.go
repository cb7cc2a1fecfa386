// Package config loads and serves the root YAML configuration document
// (spec.md §6): httpd, mqtt, db, modbus, tibber, oms, victron, knx
// sections. There is no package-level mutable global (spec.md §9's
// "singleton configuration" design note) — every worker receives an
// explicit *Handle at spawn time, and change notifications travel over a
// bounded broadcaster rather than a shared package variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// MQTTConfig is the required `mqtt` section.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HTTPDConfig is the optional `httpd` section.
type HTTPDConfig struct {
	Addr string `yaml:"addr"`
}

// ModbusDeviceConfig describes one polled device within a hub.
type ModbusDeviceConfig struct {
	Name         string `yaml:"name"`
	SlaveID      byte   `yaml:"slave_id"`
	Model        string `yaml:"model"`
	ReadInterval string `yaml:"read_interval"`
}

// ModbusHubConfig describes one TCP/RTU endpoint and its devices.
type ModbusHubConfig struct {
	Name    string               `yaml:"name"`
	Host    string               `yaml:"host"`
	Port    int                  `yaml:"port"`
	Proto   string               `yaml:"proto"`
	Devices []ModbusDeviceConfig `yaml:"devices"`
}

// OMSDeviceConfig describes one OMS mode-5 secured meter.
type OMSDeviceConfig struct {
	Name       string `yaml:"name"`
	DinAddress string `yaml:"din_address"`
	Key        string `yaml:"key"` // hex-encoded 128-bit AES key
}

// Document is the root configuration document. Load rejects a document
// whose `mqtt` section names no broker; every other section may be empty.
type Document struct {
	Httpd   HTTPDConfig          `yaml:"httpd"`
	MQTT    MQTTConfig           `yaml:"mqtt"`
	DB      map[string]any       `yaml:"db"`
	Modbus  []ModbusHubConfig    `yaml:"modbus"`
	Tibber  map[string]any       `yaml:"tibber"`
	OMS     []OMSDeviceConfig    `yaml:"oms"`
	Victron map[string]any       `yaml:"victron"`
	KNX     map[string]any       `yaml:"knx"`
}

var searchPaths = []string{"config/e2m.yaml", "e2m.yaml"}

// Handle is a loaded configuration document plus its change broadcaster.
// Workers hold a Handle, never a package-level Document.
type Handle struct {
	mu          sync.RWMutex
	doc         Document
	path        string
	broadcaster *Broadcaster
}

// Load searches searchPaths for the configuration file, overlays a
// `.env` file (via godotenv, mirroring the teacher's own use of that
// library) before parsing so secrets can be supplied out-of-band, and
// checks that the `mqtt` section names a broker; a missing `mqtt` section
// is a fatal startup error. The `modbus` and `oms` sections are not
// checked and may be absent.
func Load() (*Handle, error) {
	_ = godotenv.Load()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if doc.MQTT.Broker == "" {
		return nil, fmt.Errorf("config: mqtt section is required")
	}

	return &Handle{doc: doc, path: path, broadcaster: NewBroadcaster(100)}, nil
}

func findConfigFile() (string, error) {
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no configuration file found in %v", searchPaths)
}

// Snapshot returns a deep copy of the current document, so a worker can
// operate on it without holding the lock across I/O (spec.md §5).
func (h *Handle) Snapshot() (Document, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := yaml.Marshal(h.doc)
	if err != nil {
		return Document{}, fmt.Errorf("config: snapshot marshal: %w", err)
	}
	var clone Document
	if err := yaml.Unmarshal(data, &clone); err != nil {
		return Document{}, fmt.Errorf("config: snapshot unmarshal: %w", err)
	}
	return clone, nil
}

// Replace overwrites the in-memory document (used by the HTTP API's
// add/delete/change operations) and notifies subscribers with base
// "config".
func (h *Handle) Replace(doc Document) {
	h.mu.Lock()
	h.doc = doc
	h.mu.Unlock()
	h.broadcaster.Publish(ChangeEvent{Base: "config"})
}

// Save writes the current document back to disk, copying the previous
// file to backup.yaml first (spec.md §6).
func (h *Handle) Save() error {
	h.mu.RLock()
	doc := h.doc
	path := h.path
	h.mu.RUnlock()

	if old, err := os.ReadFile(path); err == nil {
		backup := filepath.Join(filepath.Dir(path), "backup.yaml")
		if err := os.WriteFile(backup, old, 0o644); err != nil {
			log.Warnf("config: could not write backup %s: %v", backup, err)
		}
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal on save: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// Subscribe returns a channel of configuration-change events. See
// Broadcaster for overflow semantics.
func (h *Handle) Subscribe() <-chan ChangeEvent {
	return h.broadcaster.Subscribe()
}

// Broadcaster exposes the underlying broadcaster, so callers can publish a
// ChangeEvent of their own.
func (h *Handle) Broadcaster() *Broadcaster {
	return h.broadcaster
}
