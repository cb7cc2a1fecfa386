// Package difvif decodes M-Bus payload records (DIF/VIF-encoded data
// blocks) as used by both the OMS and raw M-Bus wire formats. Decoders in
// this package are pure functions over byte slices; they never block.
package difvif

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Hessdev-de/energy2mqtt/internal/record"
)

// Decode walks payload left to right, inserting a "<field>" and
// "<field>_unit" entry into values for every record it understands.
// Unknown DIFs advance one byte with no value emitted; decoding never
// aborts on an unrecognized byte, since a telegram can mix several
// devices' worth of fields.
func Decode(payload []byte) (*record.Values, error) {
	values := record.NewValues()
	i := 0
	for i < len(payload) {
		dif := payload[i]
		i++

		// DIFE continuation bytes (extension bit 0x80 on the DIF itself);
		// they only refine storage number/tariff/subunit, which this
		// decoder does not distinguish between, so they are consumed and
		// discarded.
		for ext := dif; i < len(payload) && ext&0x80 != 0; {
			ext = payload[i]
			i++
		}

		low := dif & 0x0F

		if low == 0x0F {
			// Idle filler / manufacturer-specific special function: a
			// single standalone byte, no VIF follows.
			continue
		}

		size, kind := sizeForDIF(low)
		if kind == kindUnsupported {
			// Unknown DIF: advance by the DIF byte alone (already done
			// above), no VIF consumed, no value emitted.
			continue
		}

		if i+size > len(payload) {
			return values, fmt.Errorf("difvif: truncated data field at offset %d (need %d bytes)", i, size)
		}

		raw, isFloat, floatVal, bcdDigits := readValue(payload[i:i+size], kind)
		i += size

		if i >= len(payload) {
			// No VIF byte available; nothing more to decode.
			if kind != kindNoData && kind != kindSelection {
				values.Set(fmt.Sprintf("unknown_at_%d_novif", i-size-1), raw)
			}
			break
		}

		vifOffset := i
		vif := payload[i]
		i++
		ext := vifExtension(vif)
		var extByte byte
		if ext != extNone {
			if i >= len(payload) {
				return values, fmt.Errorf("difvif: truncated VIF extension at offset %d", i)
			}
			extByte = payload[i]
			i++
		}

		// Consume any further VIFE chain bytes (orthogonal extensions);
		// they are not interpreted by this decoder.
		last := vif
		if ext != extNone {
			last = extByte
		}
		for i < len(payload) && last&0x80 != 0 {
			last = payload[i]
			i++
		}

		if kind == kindNoData || kind == kindSelection {
			continue
		}

		field := decodeVIF(vif, ext, extByte, vifOffset)

		var numeric float64
		if isFloat {
			numeric = floatVal
		} else if kind == kindBCD {
			numeric = bcdToFloat(bcdDigits)
		} else {
			numeric = float64(raw)
		}

		switch field.post {
		case postTimeF, postTimeG:
			withTime := field.post == postTimeF
			raw32 := uint32(raw)
			if !withTime {
				raw32 = raw32 << 16
			}
			values.SetWithUnit(field.name, mbusDateTime(raw32, withTime), "")
		case postDurationSeconds:
			seconds := numeric * durationUnitSeconds(vif)
			values.SetWithUnit(field.name, seconds, "s")
		case postHex:
			values.SetWithUnit(field.name, fmt.Sprintf("%X", raw), field.unit)
		default:
			scaled := numeric * math.Pow(10, float64(field.scaler))
			values.SetWithUnit(field.name, scaled, field.unit)
		}
	}
	return values, nil
}

type dataKind int

const (
	kindUnsupported dataKind = iota
	kindNoData
	kindSelection
	kindInt
	kindFloat
	kindBCD
)

// sizeForDIF returns the byte length and handler kind for a DIF low
// nibble, per spec.md §4.2's enumerated handler set. Nibbles not listed
// there (2/4/6-digit BCD, variable length) are treated as unsupported.
func sizeForDIF(low byte) (int, dataKind) {
	switch low {
	case 0x00:
		return 0, kindNoData
	case 0x01:
		return 1, kindInt
	case 0x02:
		return 2, kindInt
	case 0x03:
		return 3, kindInt
	case 0x04:
		return 4, kindInt
	case 0x05:
		return 4, kindFloat
	case 0x06:
		return 6, kindInt
	case 0x07:
		return 8, kindInt
	case 0x08:
		return 0, kindSelection
	case 0x0C:
		return 4, kindBCD
	case 0x0E:
		return 6, kindBCD
	default:
		return 0, kindUnsupported
	}
}

// readValue reads a little-endian integer, IEEE-754 float, or BCD digit
// string out of data according to kind.
func readValue(data []byte, kind dataKind) (raw uint64, isFloat bool, floatVal float64, bcdDigits []byte) {
	switch kind {
	case kindFloat:
		bits := binary.LittleEndian.Uint32(data)
		return 0, true, float64(math.Float32frombits(bits)), nil
	case kindBCD:
		return 0, false, 0, data
	default:
		var v uint64
		for idx, b := range data {
			v |= uint64(b) << (8 * uint(idx))
		}
		return v, false, 0, nil
	}
}

// bcdToFloat interprets data per spec.md §4.2: each nibble is a decimal
// digit, high nibble first per byte, whole field little-endian byte-wise
// (the last byte holds the most significant pair of digits).
func bcdToFloat(data []byte) float64 {
	var digits []byte
	for idx := len(data) - 1; idx >= 0; idx-- {
		b := data[idx]
		digits = append(digits, b>>4, b&0x0F)
	}
	var v float64
	for _, d := range digits {
		v = v*10 + float64(d)
	}
	return v
}

// mbusDateTime decodes a DIF/VIF time-point field. raw32 holds the data
// bytes promoted to a 32-bit word so that day/month/year bit positions
// line up whether the source field was 2 bytes (type G, date only) or 4
// bytes (type F, date+time); see spec.md §9's Open Question.
func mbusDateTime(raw32 uint32, withTime bool) string {
	minute := raw32 & 0x3F
	hour := (raw32 >> 8) & 0x1F
	day := (raw32 >> 16) & 0x1F
	month := (raw32 >> 24) & 0x0F
	yearRaw := (((raw32 >> 16) & 0xE0) >> 5) | (((raw32 >> 24) & 0xF0) >> 1)

	// century uses the type-F branch's operator-precedence bug
	// (`time & 0xE0 >> 5` == `time & (0xE0>>5)` == `time & 0x07` under
	// Rust's precedence rules) for both type F and type G, per
	// spec.md §9.
	century := raw32 & 0x07
	if century == 0 && yearRaw <= 80 {
		century = 1
	}
	fullYear := 1900 + 100*century + yearRaw

	if withTime {
		return fmt.Sprintf("%02d.%02d.%04d %02d:%02d", day, month, fullYear, hour, minute)
	}
	return fmt.Sprintf("%02d.%02d.%04d", day, month, fullYear)
}

func durationUnitSeconds(vif byte) float64 {
	switch vif & 0x03 {
	case 0:
		return 1
	case 1:
		return 60
	case 2:
		return 3600
	default:
		return 86400
	}
}
