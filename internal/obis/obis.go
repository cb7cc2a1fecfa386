// Package obis implements validation, normalization, and value-string
// parsing for OBIS identifiers (IEC 62056-61), as used by the IEC 62056-21
// and SML decoders.
package obis

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is a parsed "A-B:C.D.E[*F]" OBIS identifier. F is optional; FPresent
// reports whether it was supplied.
type Code struct {
	A, B, C, D, E, F uint8
	FPresent         bool
}

// String renders the code in canonical "A-B:C.D.E" or "A-B:C.D.E*F" form.
func (c Code) String() string {
	s := fmt.Sprintf("%d-%d:%d.%d.%d", c.A, c.B, c.C, c.D, c.E)
	if c.FPresent {
		s += fmt.Sprintf("*%d", c.F)
	}
	return s
}

// Validate checks that s is a syntactically valid OBIS identifier: exactly
// one '-', exactly one ':', exactly three dot-separated fields after the
// ':', and every field an 8-bit unsigned integer. Surrounding whitespace is
// trimmed first (Validate goes through Parse, which calls Normalize).
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// Normalize trims surrounding whitespace. It does not zero-pad fields.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Parse normalizes and validates s, returning the parsed Code.
func Parse(s string) (Code, error) {
	s = Normalize(s)

	dashParts := strings.Split(s, "-")
	if len(dashParts) != 2 {
		return Code{}, fmt.Errorf("obis: expected exactly one '-' in %q", s)
	}

	colonParts := strings.Split(dashParts[1], ":")
	if len(colonParts) != 2 {
		return Code{}, fmt.Errorf("obis: expected exactly one ':' in %q", s)
	}

	rest := colonParts[1]
	fField := ""
	if idx := strings.LastIndex(rest, "*"); idx != -1 {
		fField = rest[idx+1:]
		rest = rest[:idx]
	}

	dotParts := strings.Split(rest, ".")
	if len(dotParts) != 3 {
		return Code{}, fmt.Errorf("obis: expected exactly three dot-separated fields in %q", s)
	}

	a, err := parseU8(dashParts[0])
	if err != nil {
		return Code{}, fmt.Errorf("obis: field A: %w", err)
	}
	b, err := parseU8(colonParts[0])
	if err != nil {
		return Code{}, fmt.Errorf("obis: field B: %w", err)
	}
	c, err := parseU8(dotParts[0])
	if err != nil {
		return Code{}, fmt.Errorf("obis: field C: %w", err)
	}
	d, err := parseU8(dotParts[1])
	if err != nil {
		return Code{}, fmt.Errorf("obis: field D: %w", err)
	}
	e, err := parseU8(dotParts[2])
	if err != nil {
		return Code{}, fmt.Errorf("obis: field E: %w", err)
	}

	code := Code{A: a, B: b, C: c, D: d, E: e}
	if fField != "" {
		f, err := parseU8(fField)
		if err != nil {
			return Code{}, fmt.Errorf("obis: field F: %w", err)
		}
		code.F = f
		code.FPresent = true
	}
	return code, nil
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// ParseValue splits a data-line value string such as "000123.456*kWh" into
// its leading numeric run and trailing unit (everything after the last '*',
// letters and '/' only). A value with no '*' has an empty unit.
func ParseValue(s string) (value float64, unit string, err error) {
	numPart := s
	if idx := strings.LastIndex(s, "*"); idx != -1 {
		numPart = s[:idx]
		candidate := s[idx+1:]
		if isUnit(candidate) {
			unit = candidate
		}
	}

	end := 0
	for end < len(numPart) {
		ch := numPart[end]
		if (ch >= '0' && ch <= '9') || ch == '.' || ch == '+' || ch == '-' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, "", fmt.Errorf("obis: no leading numeric value in %q", s)
	}

	value, err = strconv.ParseFloat(numPart[:end], 64)
	if err != nil {
		return 0, "", fmt.Errorf("obis: parse value %q: %w", numPart[:end], err)
	}
	return value, unit, nil
}

func isUnit(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '/') {
			return false
		}
	}
	return true
}

// Describe returns a human-readable description of a standard OBIS code for
// logging, and whether one was found.
func Describe(code Code) (string, bool) {
	d, ok := descriptions[code.String()]
	return d, ok
}

// descriptions is a fixed table of standard OBIS codes to descriptions,
// used only for log messages (spec.md §4.1).
var descriptions = map[string]string{
	"1-0:1.8.0":  "active energy import total",
	"1-0:1.8.1":  "active energy import tariff 1",
	"1-0:1.8.2":  "active energy import tariff 2",
	"1-0:2.8.0":  "active energy export total",
	"1-0:2.8.1":  "active energy export tariff 1",
	"1-0:2.8.2":  "active energy export tariff 2",
	"1-0:3.8.0":  "reactive energy import total",
	"1-0:4.8.0":  "reactive energy export total",
	"1-0:15.7.0": "active power total",
	"1-0:16.7.0": "active power sum",
	"1-0:31.7.0": "current L1",
	"1-0:32.7.0": "voltage L1",
	"1-0:51.7.0": "current L2",
	"1-0:52.7.0": "voltage L2",
	"1-0:71.7.0": "current L3",
	"1-0:72.7.0": "voltage L3",
	"1-0:14.7.0": "supply frequency",
	"1-0:0.2.0":  "firmware version",
	"0-0:1.0.0":  "date and time",
	"0-0:96.1.0": "meter serial number",
	"7-0:3.1.0":  "gas volume",
	"6-0:1.0.0":  "heat energy",
	"8-0:1.0.0":  "water volume",
}
