package sml

import (
	"bytes"
	"fmt"

	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

var (
	startSequence = []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x01}
	endSequence   = []byte{0x1B, 0x1B, 0x1B, 0x1A}
)

// ParseFile extracts and decodes every SML message from a full SML file
// (frame): the content between the 0x1B*4+0x01 start sequence and the
// 0x1B*3+0x1A end sequence, which is a concatenation of SML messages.
//
// Parsing is defensive: a message whose TLV structure is malformed aborts
// the remainder of the frame (its list boundary cannot be recovered); a
// message that parses structurally but does not match the expected
// GetListResponse shape is logged and skipped, and parsing continues with
// the next message.
func ParseFile(data []byte) ([]Message, error) {
	start := bytes.Index(data, startSequence)
	if start == -1 {
		return nil, fmt.Errorf("sml: start sequence not found")
	}
	content := data[start+len(startSequence):]

	end := bytes.Index(content, endSequence)
	if end == -1 {
		return nil, fmt.Errorf("sml: end sequence not found")
	}
	content = content[:end]

	var messages []Message
	offset := 0
	for offset < len(content) {
		n, consumed, err := readTLV(content[offset:])
		if err != nil {
			log.Warnf("sml: aborting frame at offset %d: %v", offset, err)
			break
		}
		offset += consumed

		msg, err := decodeMessage(n)
		if err != nil {
			log.Warnf("sml: skipping malformed message: %v", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// decodeMessage interprets a top-level TLV list as the 6-element SML
// message envelope described in spec.md §4.3.
func decodeMessage(n node) (Message, error) {
	if n.Type != typeList || len(n.Children) != 6 {
		return Message{}, fmt.Errorf("sml: expected 6-element message list, got type=%d len=%d", n.Type, len(n.Children))
	}

	transactionID := string(n.Children[0].Bytes)
	body := n.Children[3]
	if body.Type != typeList || len(body.Children) < 2 {
		return Message{}, fmt.Errorf("sml: malformed message_body")
	}
	msgType := uint16(body.Children[0].asUint())

	msg := Message{TransactionID: transactionID, MessageType: msgType}
	if msgType == messageTypeGetListResponse {
		list, err := decodeGetListResponse(body.Children[1])
		if err != nil {
			return Message{}, fmt.Errorf("sml: GetListResponse: %w", err)
		}
		msg.List = list
	}
	return msg, nil
}

// decodeGetListResponse interprets the message_body's second element (a
// 7-element list per spec.md §4.3) as a GetListResponse, extracting the
// server ID and the value list (the list's last element, a type-7 node).
func decodeGetListResponse(n node) (*GetListResponse, error) {
	if n.Type != typeList || len(n.Children) != 7 {
		return nil, fmt.Errorf("expected 7-element GetListResponse list, got type=%d len=%d", n.Type, len(n.Children))
	}

	serverID := fmt.Sprintf("%x", n.Children[1].Bytes)
	valList := n.Children[6]
	if valList.Type != typeList {
		return nil, fmt.Errorf("expected value list as last element, got type=%d", valList.Type)
	}

	resp := &GetListResponse{ServerID: serverID}
	for idx, entry := range valList.Children {
		e, err := decodeValueListEntry(entry)
		if err != nil {
			log.Warnf("sml: skipping malformed value-list entry %d: %v", idx, err)
			continue
		}
		resp.Values = append(resp.Values, e)
	}
	return resp, nil
}

// decodeValueListEntry interprets one value-list entry: the 7-element
// list {obis_code, status, val_time, unit, scaler, value, value_signature}
// from spec.md §4.3.
func decodeValueListEntry(n node) (ValueListEntry, error) {
	if n.Type != typeList || len(n.Children) != 7 {
		return ValueListEntry{}, fmt.Errorf("expected 7-element value-list entry, got type=%d len=%d", n.Type, len(n.Children))
	}

	obis, err := obisFromBytes(n.Children[0].Bytes)
	if err != nil {
		return ValueListEntry{}, err
	}

	unitNode := n.Children[3]
	unit := ""
	if !unitNode.IsNull {
		unit = UnitName(uint8(unitNode.asUint()))
	}

	scalerNode := n.Children[4]
	scaler := int8(0)
	if !scalerNode.IsNull {
		scaler = int8(scalerNode.asInt())
	}

	valueNode := n.Children[5]
	var raw float64
	switch valueNode.Type {
	case typeSigned:
		raw = float64(valueNode.asInt())
	default:
		raw = float64(valueNode.asUint())
	}

	value := raw
	for i := int8(0); i < scaler; i++ {
		value *= 10
	}
	for i := int8(0); i > scaler; i-- {
		value /= 10
	}

	return ValueListEntry{Obis: obis, Unit: unit, Value: value}, nil
}
