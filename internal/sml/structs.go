package sml

import (
	"fmt"
)

// ObisCode is the 6-byte SML OBIS identifier: A-B:C.D.E.F, with all six
// components always present (unlike the general obis.Code, whose final
// component is optional).
type ObisCode struct {
	A, B, C, D, E, F uint8
}

func obisFromBytes(b []byte) (ObisCode, error) {
	if len(b) != 6 {
		return ObisCode{}, fmt.Errorf("sml: OBIS code must be 6 bytes, got %d", len(b))
	}
	return ObisCode{b[0], b[1], b[2], b[3], b[4], b[5]}, nil
}

func (o ObisCode) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d.%d", o.A, o.B, o.C, o.D, o.E, o.F)
}

// ValueListEntry is one decoded entry of a GetListResponse's value list.
type ValueListEntry struct {
	Obis  ObisCode
	Unit  string
	Value float64
}

// GetListResponse is the subset of an SML GetListResponse (message type
// 0x701) this gateway extracts data from: the value list.
type GetListResponse struct {
	ServerID string
	Values   []ValueListEntry
}

// Message is one decoded top-level SML message.
type Message struct {
	TransactionID string
	MessageType   uint16
	List          *GetListResponse
}

const messageTypeGetListResponse = 0x701
