package sml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encOctet(b []byte) []byte {
	return append([]byte{byte(0x00<<4 | len(b)+1)}, b...)
}

func encSigned(b []byte) []byte {
	return append([]byte{byte(int(typeSigned)<<4 | (len(b) + 1))}, b...)
}

func encList(children ...[]byte) []byte {
	out := []byte{byte(int(typeList)<<4 | len(children))}
	for _, c := range children {
		out = append(out, c...)
	}
	return out
}

// TestOBISRendering covers scenario S3: the 6-byte OBIS code
// 0x01 0x00 0x01 0x08 0x00 0xFF renders as "1-0:1.8.0.255".
func TestOBISRendering(t *testing.T) {
	obis, err := obisFromBytes([]byte{0x01, 0x00, 0x01, 0x08, 0x00, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, "1-0:1.8.0.255", obis.String())
}

// TestReadTLVTypeLengthPair covers scenario S3's byte sequences: the pair
// 0x72 0x05 alone is read as a list header declaring 2 elements whose first
// element header (0x05) has no bytes behind it, so the read fails; the
// octet-string 0x05 0x01 0x02 0x03 0x04 parses independently to
// [0x01,0x02,0x03,0x04].
func TestReadTLVTypeLengthPair(t *testing.T) {
	header, consumed, err := readTLV([]byte{0x72, 0x05})
	require.Error(t, err) // declares 2 children but none follow
	_ = header
	_ = consumed

	n, _, err := readTLV([]byte{0x05, 0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, n.Bytes)
}

func buildGetListResponseFrame(obisBytes []byte, scaler int8, value int64) []byte {
	entry := encList(
		encOctet(obisBytes), // obis_code
		[]byte{0x01},        // status (null)
		[]byte{0x01},        // val_time (null)
		encSigned([]byte{byte(28)}), // unit = 28 (kWh)
		encSigned([]byte{byte(scaler)}),
		encSigned([]byte{byte(value >> 8), byte(value)}),
		[]byte{0x01}, // value_signature (null)
	)
	valList := encList(entry)

	getListResponse := encList(
		[]byte{0x01},                    // client_id (null)
		encOctet([]byte{0x01, 0x02, 0x03}), // server_id
		[]byte{0x01},                    // list_name (null)
		[]byte{0x01}, // act_sensor_time (null)
		[]byte{0x01}, // list_signature (null)
		[]byte{0x01}, // act_gateway_time (null)
		valList,
	)

	messageBody := encList(
		encSigned([]byte{0x07, 0x01}), // message type 0x0701
		getListResponse,
	)

	message := encList(
		encOctet([]byte{0x00, 0x00, 0x00, 0x01}), // transaction_id
		[]byte{0x01},                             // group_no (null)
		[]byte{0x01},                             // abort_on_error (null)
		messageBody,
		[]byte{0x01}, // crc (null)
		[]byte{0x01}, // end_of_message (null)
	)

	var frame []byte
	frame = append(frame, startSequence...)
	frame = append(frame, message...)
	frame = append(frame, endSequence...)
	return frame
}

func TestParseFileGetListResponse(t *testing.T) {
	frame := buildGetListResponseFrame([]byte{0x01, 0x00, 0x01, 0x08, 0x00, 0xFF}, -1, 1234)

	messages, err := ParseFile(frame)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, uint16(0x0701), msg.MessageType)
	require.NotNil(t, msg.List)
	assert.Equal(t, "010203", msg.List.ServerID)
	require.Len(t, msg.List.Values, 1)

	v := msg.List.Values[0]
	assert.Equal(t, "1-0:1.8.0.255", v.Obis.String())
	assert.Equal(t, "kWh", v.Unit)
	assert.InDelta(t, 123.4, v.Value, 0.0001)
}

func TestParseFileMissingStartSequence(t *testing.T) {
	_, err := ParseFile([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestParseFileMissingEndSequence(t *testing.T) {
	data := append([]byte{}, startSequence...)
	data = append(data, 0x01, 0x02)
	_, err := ParseFile(data)
	assert.Error(t, err)
}
