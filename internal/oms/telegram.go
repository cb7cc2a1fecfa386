// Package oms decodes OMS (Open Metering System) wireless M-Bus
// telegrams: CRC-verified block framing, DLL/TPL parsing, mode-5
// AES-128-CBC decryption, and DIF/VIF payload decoding. See spec.md §4.7.
package oms

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Hessdev-de/energy2mqtt/internal/difvif"
	"github.com/Hessdev-de/energy2mqtt/internal/record"
	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

const (
	cFieldSndNr = 0x44
)

var (
	shortHeaderCIs = map[byte]bool{
		0x67: true, 0x6E: true, 0x74: true, 0x7A: true, 0x7D: true,
		0x7F: true, 0x88: true, 0x9E: true, 0xC1: true, 0xC4: true,
	}
	longHeaderCIs = map[byte]bool{
		0x68: true, 0x6F: true, 0x72: true, 0x75: true, 0x7C: true,
		0x7E: true, 0x9F: true, 0xC2: true, 0xC5: true,
	}
	wiredCIs = map[byte]bool{0x66: true, 0x70: true, 0x71: true}
)

// Device is a configured OMS-secured device, keyed by its DIN-5 address.
type Device struct {
	Name string
	Key  []byte // 128-bit AES key
}

// DeviceLookup resolves a DIN-5 address to its configured device.
type DeviceLookup func(dinAddress string) (Device, bool)

// Decode implements spec.md §4.7 end to end. withCRC selects whether the
// telegram carries the per-block CRC-16 trailers described in step 1.
func Decode(telegram []byte, withCRC bool, lookup DeviceLookup) (*record.Record, error) {
	if withCRC {
		stripped, err := verifyAndStripCRC(telegram)
		if err != nil {
			return nil, err
		}
		telegram = stripped
	}

	if len(telegram) < 10 {
		return nil, ErrTelegramTooShort
	}
	if len(telegram) > 255 {
		return nil, ErrTelegramTooLong
	}

	length := int(telegram[0])
	if length > len(telegram) {
		return nil, ErrTelegramTooShort
	}

	if telegram[1] != cFieldSndNr {
		return nil, ErrUnsupportedTelegramType
	}

	manufacturer := manufacturerCode(telegram)
	serial := fmt.Sprintf("%02x%02x%02x%02x", telegram[7], telegram[6], telegram[5], telegram[4])
	version := fmt.Sprintf("%02x", telegram[8])
	medium := fmt.Sprintf("%x", telegram[9])

	dinAddr := medium + manufacturer + version + serial

	device, ok := lookup(dinAddr)
	if !ok {
		return nil, ErrSensorNotConfigured
	}

	if len(telegram) < 11 {
		return nil, ErrTelegramTooShort
	}
	ci := telegram[10]

	proto := record.NewValues()
	proto.Set("type", "oms")
	proto.Set("crc_verified", withCRC)
	proto.Set("c_field", "SND_NR")
	proto.Set("manufacturer", manufacturer)
	proto.Set("device_number", serial)
	proto.Set("version_number", version)
	proto.Set("device_medium", deviceMediumName(medium))
	proto.Set("din_addr_sender", dinAddr)
	proto.Set("din_addr_meter", dinAddr)

	var accessNo byte
	var configField uint16

	switch {
	case shortHeaderCIs[ci]:
		proto.Set("ci_field", "short")
		if len(telegram) < 15 {
			return nil, ErrTelegramTooShort
		}
		accessNo = telegram[11]
		status := telegram[12]
		configField = uint16(telegram[14])<<8 | uint16(telegram[13])
		proto.Set("status", statusName(status))
	case longHeaderCIs[ci]:
		proto.Set("ci_field", "long")
		return nil, fmt.Errorf("oms: long header telegrams are not yet implemented")
	case wiredCIs[ci]:
		return nil, ErrWiredProtocolNotSupported
	default:
		return nil, ErrSecurityCiTypeNotSupported
	}

	proto.Set("transmission_counter", accessNo)

	securityMode := (configField >> 8) & 0x1F
	if securityMode != 5 {
		return nil, ErrSecurityModeNotSupported
	}
	proto.Set("security_mode", securityMode)

	decrypted, err := decryptMode5(telegram, accessNo, 15, device.Key)
	if err != nil {
		return nil, err
	}
	if len(decrypted) < 2 || decrypted[0] != 0x2F || decrypted[1] != 0x2F {
		return nil, ErrDecryptionFailed
	}
	payload := stripFiller(decrypted)

	rec := record.New(uuid.NewString(), device.Name, record.ProtocolOMS, time.Now().Unix())
	rec.MeteredValues.Set("payload", hex.EncodeToString(payload))

	decoded, err := difvif.Decode(payload)
	if decoded != nil {
		rec.MeteredValues.Merge(decoded)
	}
	if err != nil {
		log.Warnf("oms: payload decode for %s stopped early: %v", dinAddr, err)
	}
	rec.MeteredValues.Set(record.ProtoKey, proto)

	return rec, nil
}

// manufacturerCode decodes the two packed 5-bit letter codes into three
// uppercase ASCII letters, per the M-Bus manufacturer convention.
func manufacturerCode(telegram []byte) string {
	m := uint16(telegram[3])<<8 | uint16(telegram[2])
	a := byte((m>>10)&0x1F) + 'A' - 1
	b := byte((m>>5)&0x1F) + 'A' - 1
	c := byte(m&0x1F) + 'A' - 1
	return string([]byte{a, b, c})
}

func statusName(status byte) string {
	switch status & 0x03 {
	case 0:
		return "ok"
	case 1:
		return "application busy"
	case 2:
		return "application error"
	default:
		return "alarm"
	}
}

func deviceMediumName(medium string) string {
	switch medium {
	case "2":
		return "Electricity"
	case "3":
		return "Gas"
	case "4":
		return "Heat"
	case "6":
		return "Water (hot)"
	case "7":
		return "Water (cold)"
	case "8":
		return "Heat Cost Allocator"
	case "a":
		return "Cooling"
	case "b":
		return "Cooling"
	case "c":
		return "Heat"
	case "d":
		return "Heat / Cooling Combined"
	case "15":
		return "Water (hot)"
	case "16":
		return "Water (cold)"
	case "20", "21":
		return "Breaker / Valve"
	default:
		return "unknown"
	}
}

// decryptMode5 builds the mode-5 IV (M-field ‖ A-field ‖ access-number×8)
// and AES-128-CBC decrypts telegram[start:] with no padding.
func decryptMode5(telegram []byte, accessNo byte, start int, key []byte) ([]byte, error) {
	if start > len(telegram) {
		return nil, ErrDecryptionFailed
	}
	iv := make([]byte, 16)
	copy(iv[0:8], telegram[2:10])
	for i := 8; i < 16; i++ {
		iv[i] = accessNo
	}

	ciphertext := telegram[start:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("oms: %w: %v", ErrDecryptionFailed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// stripFiller removes the two leading 0x2F verification bytes and any
// trailing run of 0x2F filler introduced by the AES block padding.
func stripFiller(decrypted []byte) []byte {
	body := decrypted[2:]
	end := len(body)
	for end > 0 && body[end-1] == 0x2F {
		end--
	}
	return body[:end]
}
