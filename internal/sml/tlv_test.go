package sml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTLVHeader(t *testing.T) {
	// 0x72 0x05: type=7 (list), length=2 elements: an octet string
	// 0x05 0x01 0x02 0x03 0x04 and a null 0x01. consumed covers the header
	// and both elements.
	n, consumed, err := readTLV([]byte{0x72, 0x05, 0x01, 0x02, 0x03, 0x04, 0x01})
	require.NoError(t, err)
	assert.Equal(t, typeList, n.Type)
	assert.Len(t, n.Children, 2)
	assert.Equal(t, 7, consumed)
}

func TestReadTLVOctetString(t *testing.T) {
	n, consumed, err := readTLV([]byte{0x05, 0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, typeOctet, n.Type)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, n.Bytes)
	assert.Equal(t, 5, consumed)
}

func TestReadTLVNestedList(t *testing.T) {
	// list of 2: octet-string{0xAA}, octet-string{0xBB, 0xCC}
	n, consumed, err := readTLV([]byte{0x72, 0x02, 0xAA, 0x03, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, typeList, n.Type)
	require.Len(t, n.Children, 2)
	assert.Equal(t, []byte{0xAA}, n.Children[0].Bytes)
	assert.Equal(t, []byte{0xBB, 0xCC}, n.Children[1].Bytes)
	assert.Equal(t, 6, consumed)
}

func TestReadTLVExtendedLength(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := append([]byte{0x0F, 22}, payload...)
	n, consumed, err := readTLV(data)
	require.NoError(t, err)
	assert.Equal(t, payload, n.Bytes)
	assert.Equal(t, 22, consumed)
}

func TestReadTLVNull(t *testing.T) {
	n, consumed, err := readTLV([]byte{0x01})
	require.NoError(t, err)
	assert.True(t, n.IsNull)
	assert.Equal(t, 1, consumed)
}

func TestReadTLVTruncated(t *testing.T) {
	_, _, err := readTLV([]byte{0x75, 0x01, 0x02})
	assert.Error(t, err)
}

func TestAsIntSignedness(t *testing.T) {
	n := node{Bytes: []byte{0xFF}}
	assert.Equal(t, int64(-1), n.asInt())

	n = node{Bytes: []byte{0x00, 0x0A}}
	assert.Equal(t, int64(10), n.asInt())
}
