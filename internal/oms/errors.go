package oms

import "errors"

// Error taxonomy is closed per spec.md §7.
var (
	ErrTelegramTooShort         = errors.New("oms: telegram too short")
	ErrTelegramTooLong          = errors.New("oms: telegram too long")
	ErrUnsupportedTelegramType  = errors.New("oms: unsupported telegram type")
	ErrCrcMismatch              = errors.New("oms: CRC mismatch")
	ErrWiredProtocolNotSupported = errors.New("oms: wired M-Bus protocol not supported")
	ErrSecurityModeNotSupported = errors.New("oms: security mode not supported")
	ErrDecryptionFailed         = errors.New("oms: decryption failed")
	ErrSecurityCiTypeNotSupported = errors.New("oms: CI field type not supported")
	ErrSensorNotConfigured      = errors.New("oms: sensor not configured")
)
