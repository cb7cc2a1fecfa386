package difvif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnergyField(t *testing.T) {
	// DIF 0x04 (4-byte int), value 1234 little-endian, VIF 0x03 (energy, 10^0 Wh).
	payload := []byte{0x04, 0xD2, 0x04, 0x00, 0x00, 0x03}
	values, err := Decode(payload)
	require.NoError(t, err)

	v, ok := values.Get("energy")
	require.True(t, ok)
	assert.InDelta(t, 1234.0, v, 0.0001)

	unit, ok := values.Get("energy_unit")
	require.True(t, ok)
	assert.Equal(t, "Wh", unit)
}

func TestDecodeBCDField(t *testing.T) {
	// DIF 0x0C (4-byte BCD), digits 12345678 (low byte first), VIF 0x13
	// (volume, 10^(3-6)=10^-3 m3).
	payload := []byte{0x0C, 0x78, 0x56, 0x34, 0x12, 0x13}
	values, err := Decode(payload)
	require.NoError(t, err)

	v, ok := values.Get("volume")
	require.True(t, ok)
	assert.InDelta(t, 12345.678, v, 0.0001)
}

func TestDecodeDurationField(t *testing.T) {
	// DIF 0x02 (2-byte int), value 5, VIF 0x21 (on_time, minutes: vif&3==1).
	payload := []byte{0x02, 0x05, 0x00, 0x21}
	values, err := Decode(payload)
	require.NoError(t, err)

	v, ok := values.Get("on_time")
	require.True(t, ok)
	assert.InDelta(t, 300.0, v, 0.0001) // 5 minutes in seconds
}

func TestDecodeErrorFlagsAsHex(t *testing.T) {
	// DIF 0x02 (2-byte int), value 0x00FF, VIF 0xFD (ext table) + extByte 0x17.
	payload := []byte{0x02, 0xFF, 0x00, 0xFD, 0x17}
	values, err := Decode(payload)
	require.NoError(t, err)

	v, ok := values.Get("error_flags")
	require.True(t, ok)
	assert.Equal(t, "FF", v)
}

func TestDecodeUnknownDIFIsSkippedNotFatal(t *testing.T) {
	// 0x0A is not in the supported DIF set (4-digit BCD); skip it, then
	// decode a normal energy field that follows.
	payload := []byte{0x0A, 0x04, 0xD2, 0x04, 0x00, 0x00, 0x03}
	values, err := Decode(payload)
	require.NoError(t, err)

	v, ok := values.Get("energy")
	require.True(t, ok)
	assert.InDelta(t, 1234.0, v, 0.0001)
}

func TestDecodeTruncatedFieldReturnsError(t *testing.T) {
	payload := []byte{0x04, 0xD2, 0x04}
	_, err := Decode(payload)
	assert.Error(t, err)
}

func TestMbusDateTimeTypeFWithTime(t *testing.T) {
	// day=15 (bits 16-20), month=6 (bits 24-27), hour=14 (bits 8-12),
	// minute=30 (bits 0-5); all year/century bits left zero, so this also
	// exercises the century==0-promotes-to-1 rule (year resolves to 2000).
	raw32 := uint32(0)
	raw32 |= uint32(30)
	raw32 |= uint32(14) << 8
	raw32 |= uint32(15) << 16
	raw32 |= uint32(6) << 24

	got := mbusDateTime(raw32, true)
	assert.Equal(t, "15.06.2000 14:30", got)
}

func TestMbusDateTimeCenturyZeroPromotesWhenYearLow(t *testing.T) {
	// century field (raw32 & 0x07) == 0, yearRaw <= 80 -> century promoted to 1.
	got := mbusDateTime(0, false)
	assert.Contains(t, got, "2000")
}

func TestMbusDateTimeNonZeroYear(t *testing.T) {
	// day=1 (bit16), month=1 (bit24); year=24 split across its two source
	// fields per the type-F branch: low 3 bits from (day byte's top 3
	// bits, 21-23) here left zero, high 4 bits from (month byte's top 4
	// bits, 28-31) set to 0b0011 (24>>1==0x18 after the >>1 term), giving
	// yearRaw=24; century bits (0-2) are left zero and so promote to 1,
	// for a resolved year of 2024.
	raw32 := uint32(1)<<16 | uint32(1)<<24 | uint32(1)<<28 | uint32(1)<<29

	got := mbusDateTime(raw32, true)
	assert.Equal(t, "01.01.2024 00:00", got)
}
