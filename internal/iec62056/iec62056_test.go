package iec62056

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseMinimalTelegram covers scenario S2.
func TestParseMinimalTelegram(t *testing.T) {
	input := "/ELS5\\@V5.3\n1-0:1.8.1(000123.456*kWh)\n1-0:15.7.0(001.234*kW)\n!"

	telegram, skipped, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, "ELS", telegram.Identification.Manufacturer)
	assert.Equal(t, ModeC, telegram.Identification.Mode)

	values := telegram.Values()
	assert.Equal(t, "000123.456*kWh", values["1-0:1.8.1"])
	assert.Equal(t, "kWh", values["1-0:1.8.1_unit"])
	assert.Equal(t, "kW", values["1-0:15.7.0_unit"])
}

func TestParseModeInference(t *testing.T) {
	_, _, err := Parse("/ELS5\nfoo\n!")
	require.NoError(t, err)

	tA, _, err := Parse("/ELS5\n!")
	require.NoError(t, err)
	assert.Equal(t, ModeA, tA.Identification.Mode)

	tD, _, err := Parse("/ELS5ABCDEFGHIJK\n!")
	require.NoError(t, err)
	assert.Equal(t, ModeD, tD.Identification.Mode)

	tC, _, err := Parse("/ELS5@V1.0\n!")
	require.NoError(t, err)
	assert.Equal(t, ModeC, tC.Identification.Mode)
}

func TestParseSkipsMalformedDataLines(t *testing.T) {
	input := "/ELS5\nnot-a-data-line\n1-0:1.8.1(123*kWh)\n!"
	telegram, skipped, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, telegram.DataLines, 1)
	assert.Equal(t, "1-0:1.8.1", telegram.DataLines[0].Obis)
}

func TestParseMissingIdentification(t *testing.T) {
	_, _, err := Parse("1-0:1.8.1(123*kWh)\n!")
	assert.Error(t, err)
}

func TestVerifyBCC(t *testing.T) {
	telegram := []byte("/ELS5\n1-0:1.8.1(123*kWh)\n!")
	var want byte
	for _, b := range telegram[1:] {
		want ^= b
	}
	assert.NoError(t, VerifyBCC(telegram, want))
	assert.Error(t, VerifyBCC(telegram, want^0xFF))
}
