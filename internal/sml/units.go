package sml

// unitNames is the complete SML unit-code table (spec.md §6 shows only
// an abbreviated excerpt; this is the full table carried over from
// original_source/src/metering_sml/structs.rs's get_sml_unit_name).
var unitNames = map[uint8]string{
	1:  "a",
	2:  "mo",
	3:  "wk",
	4:  "d",
	5:  "h",
	6:  "min",
	7:  "s",
	8:  "°",
	9:  "°C",
	10: "K",
	11: "m",
	12: "dm",
	13: "cm",
	14: "mm",
	15: "km",
	16: "m²",
	17: "m³",
	18: "l",
	19: "kg",
	20: "g",
	21: "t",
	22: "N",
	23: "Pa",
	24: "bar",
	25: "J",
	26: "kJ",
	27: "Wh",
	28: "kWh",
	29: "MWh",
	30: "W",
	31: "kW",
	32: "MW",
	33: "var",
	34: "kvar",
	35: "VA",
	36: "kVA",
	37: "V",
	38: "mV",
	39: "kV",
	40: "A",
	41: "mA",
	42: "kA",
	43: "Ω",
	44: "mΩ",
	45: "kΩ",
	46: "F",
	47: "C",
	48: "Hz",
	49: "kHz",
	50: "MHz",
	51: "1/h",
	52: "1/d",
	53: "1/wk",
	54: "1/mo",
	55: "1/a",
}

// UnitName looks up the symbol for an SML unit code, returning "" when
// the code is not in the table.
func UnitName(code uint8) string {
	return unitNames[code]
}
