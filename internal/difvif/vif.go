package difvif

import "fmt"

// postProcess selects any unit-specific post-processing a VIF requires
// beyond "value := raw * 10^scaler".
type postProcess int

const (
	postNone postProcess = iota
	postTimeF
	postTimeG
	postDurationSeconds
	postHex
)

type vifField struct {
	name   string
	scaler int
	unit   string
	post   postProcess
}

type extensionTable int

const (
	extNone extensionTable = iota
	extFB
	extFD
)

// vifExtension reports whether vif (before masking off the extension bit)
// selects the 0xFB or 0xFD secondary VIF table.
func vifExtension(vif byte) extensionTable {
	switch vif {
	case 0xFB:
		return extFB
	case 0xFD:
		return extFD
	default:
		return extNone
	}
}

// decodeVIF resolves a VIF byte (plus, for extended VIFs, the following
// extension-table byte) to a field descriptor. offset is the VIF byte's
// position in the payload, used only to name unrecognized VIFs per
// spec.md §7's "unknown_at_<offset>_<vif>" diagnostic key.
func decodeVIF(vif byte, ext extensionTable, extByte byte, offset int) vifField {
	switch ext {
	case extFB:
		return decodeVIFExtFB(extByte, offset)
	case extFD:
		return decodeVIFExtFD(extByte, offset)
	default:
		return decodeVIFPrimary(vif&0x7F, offset)
	}
}

// decodeVIFPrimary implements the primary VIF table (EN 13757-3), covering
// the field groups spec.md §4.2 names explicitly (energy, on/operating
// time, error flags, digital I/O, time point) plus the surrounding groups
// needed to stay in sync with real telegrams.
func decodeVIFPrimary(v byte, offset int) vifField {
	switch {
	case v <= 0x07: // E000 0nnn: energy, 10^(nnn-3) Wh
		return vifField{"energy", int(v&0x07) - 3, "Wh", postNone}
	case v <= 0x0F: // E000 1nnn: energy, 10^(nnn) J
		return vifField{"energy", int(v & 0x07), "J", postNone}
	case v <= 0x17: // E001 0nnn: volume, 10^(nnn-6) m3
		return vifField{"volume", int(v&0x07) - 6, "m3", postNone}
	case v <= 0x1F: // E001 1nnn: mass, 10^(nnn-3) kg
		return vifField{"mass", int(v&0x07) - 3, "kg", postNone}
	case v <= 0x23: // E010 00nn: on time
		return vifField{"on_time", 0, "s", postDurationSeconds}
	case v <= 0x27: // E010 01nn: operating time
		return vifField{"operating_time", 0, "s", postDurationSeconds}
	case v <= 0x2F: // E010 1nnn: power, 10^(nnn-3) W
		return vifField{"power", int(v&0x07) - 3, "W", postNone}
	case v <= 0x37: // E011 0nnn: power, 10^(nnn) J/h
		return vifField{"power", int(v & 0x07), "J/h", postNone}
	case v <= 0x3F: // E011 1nnn: volume flow, 10^(nnn-6) m3/h
		return vifField{"volume_flow", int(v&0x07) - 6, "m3/h", postNone}
	case v <= 0x47: // E100 0nnn: volume flow ext, 10^(nnn-7) m3/min
		return vifField{"volume_flow_ext", int(v&0x07) - 7, "m3/min", postNone}
	case v <= 0x4F: // E100 1nnn: volume flow ext2, 10^(nnn-9) m3/s
		return vifField{"volume_flow_ext2", int(v&0x07) - 9, "m3/s", postNone}
	case v <= 0x57: // E101 0nnn: mass flow, 10^(nnn-3) kg/h
		return vifField{"mass_flow", int(v&0x07) - 3, "kg/h", postNone}
	case v <= 0x5B: // E101 10nn: flow temperature, 10^(nn-3) C
		return vifField{"flow_temperature", int(v&0x03) - 3, "C", postNone}
	case v <= 0x5F: // E101 11nn: return temperature, 10^(nn-3) C
		return vifField{"return_temperature", int(v&0x03) - 3, "C", postNone}
	case v <= 0x63: // E110 00nn: temperature difference, 10^(nn-3) K
		return vifField{"temperature_difference", int(v&0x03) - 3, "K", postNone}
	case v <= 0x67: // E110 01nn: external temperature, 10^(nn-3) C
		return vifField{"external_temperature", int(v&0x03) - 3, "C", postNone}
	case v <= 0x6B: // E110 10nn: pressure, 10^(nn-3) bar
		return vifField{"pressure", int(v&0x03) - 3, "bar", postNone}
	case v == 0x6C: // E110 1100: time point, date (type G)
		return vifField{"date", 0, "", postTimeG}
	case v == 0x6D: // E110 1101: time point, date+time (type F)
		return vifField{"date_time", 0, "", postTimeF}
	case v == 0x6E: // E110 1110: units for H.C.A.
		return vifField{"hca_units", 0, "", postNone}
	case v <= 0x73: // E111 00nn: averaging duration
		return vifField{"averaging_duration", 0, "s", postDurationSeconds}
	case v <= 0x77: // E111 01nn: actuality duration
		return vifField{"actuality_duration", 0, "s", postDurationSeconds}
	case v == 0x78: // E111 1000: fabrication number
		return vifField{"fabrication_number", 0, "", postNone}
	case v == 0x79: // E111 1001: (enhanced) identification
		return vifField{"identification", 0, "", postNone}
	case v == 0x7A: // E111 1010: bus address
		return vifField{"bus_address", 0, "", postNone}
	default:
		return vifField{unknownVIFKey(offset, v), 0, "", postNone}
	}
}

// decodeVIFExtFB implements the subset of the 0xFB secondary table
// (larger energy/volume units, e.g. MWh/Gcal) this gateway is expected to
// see from European electricity/heat meters.
func decodeVIFExtFB(v byte, offset int) vifField {
	switch {
	case v <= 0x01: // E000 000n: energy, 10^(n-1) MWh
		return vifField{"energy", int(v&0x01) - 1, "MWh", postNone}
	case v >= 0x08 && v <= 0x09: // E000 100n: energy, 10^(n-1) GJ
		return vifField{"energy", int(v&0x01) - 1, "GJ", postNone}
	default:
		return vifField{unknownVIFKey(offset, v), 0, "", postNone}
	}
}

// decodeVIFExtFD implements the subset of the 0xFD secondary table
// spec.md §4.2 calls out by name: error flags and digital input/output,
// both rendered as uppercase hexadecimal rather than scaled numbers.
func decodeVIFExtFD(v byte, offset int) vifField {
	switch v {
	case 0x17:
		return vifField{"error_flags", 0, "", postHex}
	case 0x1A:
		return vifField{"digital_output", 0, "", postHex}
	case 0x1B:
		return vifField{"digital_input", 0, "", postHex}
	default:
		return vifField{unknownVIFKey(offset, v), 0, "", postNone}
	}
}

// unknownVIFKey names an unrecognized VIF per spec.md §7's diagnostic key
// convention, consistent with the no-VIF case in Decode.
func unknownVIFKey(offset int, vif byte) string {
	return fmt.Sprintf("unknown_at_%d_%02X", offset, vif)
}
