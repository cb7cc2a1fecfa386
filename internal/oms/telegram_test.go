package oms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureTelegram is a synthetic SND_NR/short-header/security-mode-5
// telegram (manufacturer "ELS", medium Gas, DIN address 3ELS3312345678)
// built and AES-128-CBC encrypted offline against a known plaintext of
// "energy, 10^0 Wh, raw 1234" (DIF 0x02, VIF 0x03) padded with 0x2F
// filler to one cipher block, verifying the mode-5 IV construction and
// decryption end to end (spec.md testable property 4).
var fixtureTelegram = []byte{
	0x1E, 0x44, 0x93, 0x15, 0x78, 0x56, 0x34, 0x12, 0x33, 0x03,
	0x7A, 0x05, 0x00, 0x00, 0x05,
	0x63, 0xF4, 0x0D, 0x56, 0xF4, 0x2A, 0xB2, 0xD8,
	0xCA, 0x29, 0xE8, 0x61, 0xAF, 0xC7, 0x54, 0x0E,
}

var fixtureKey = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
}

const fixtureDinAddr = "3ELS3312345678"

func fixtureLookup(known bool) DeviceLookup {
	return func(dinAddress string) (Device, bool) {
		if !known || dinAddress != fixtureDinAddr {
			return Device{}, false
		}
		return Device{Name: "gas-meter-1", Key: fixtureKey}, true
	}
}

func TestDecodeModeFiveKnownAnswer(t *testing.T) {
	rec, err := Decode(fixtureTelegram, false, fixtureLookup(true))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "gas-meter-1", rec.MeterName)
	v, ok := rec.MeteredValues.Get("energy")
	require.True(t, ok)
	assert.InDelta(t, 1234.0, v, 0.0001)
}

func TestDecodeUnknownDeviceIsRejected(t *testing.T) {
	_, err := Decode(fixtureTelegram, false, fixtureLookup(false))
	assert.ErrorIs(t, err, ErrSensorNotConfigured)
}

func TestDecodeWrongKeyFailsVerification(t *testing.T) {
	badLookup := func(dinAddress string) (Device, bool) {
		return Device{Name: "gas-meter-1", Key: make([]byte, 16)}, true
	}
	_, err := Decode(fixtureTelegram, false, badLookup)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestManufacturerCodeDecoding(t *testing.T) {
	assert.Equal(t, "ELS", manufacturerCode(fixtureTelegram))
}

func TestDecodeTruncatedTelegramRejected(t *testing.T) {
	_, err := Decode(fixtureTelegram[:8], false, fixtureLookup(true))
	assert.ErrorIs(t, err, ErrTelegramTooShort)
}

func TestDecodeWiredCIRejected(t *testing.T) {
	telegram := append([]byte{}, fixtureTelegram...)
	telegram[10] = 0x70
	_, err := Decode(telegram, false, fixtureLookup(true))
	assert.ErrorIs(t, err, ErrWiredProtocolNotSupported)
}
