package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Hessdev-de/energy2mqtt/internal/modbus"
)

func TestBuildModbusDeviceComponents(t *testing.T) {
	rm := modbus.RegisterMap{
		Manufacturer: "Eastron",
		Model:        "SDM630",
		Registers: []modbus.Register{
			{Name: "voltage_l1", UnitOfMeasurement: "V", DeviceClass: "voltage", Platform: modbus.Sensor},
		},
		Templates: []modbus.Template{
			{Name: "apparent_power", UnitOfMeasurement: "VA", Platform: modbus.Sensor},
		},
	}

	rec := BuildModbusDevice("energy2mqtt", "meter1", rm)

	assert.Equal(t, "meter1", rec.Name)
	assert.Equal(t, "Eastron", rec.Manufacturer)
	assert.Equal(t, "energy2mqtt/devs/modbus-tcp/meter1", rec.StateTopic)
	assert.Equal(t, "homeassistant/device/e2m_modbus-tcp-meter1/config", rec.Topic())
	if assert.Len(t, rec.Components, 2) {
		assert.Equal(t, "voltage_l1", rec.Components[0].Key)
		assert.Equal(t, "{{ value_json.voltage_l1 }}", rec.Components[0].ValueTemplate)
		assert.Equal(t, "apparent_power", rec.Components[1].Key)
	}
}
