package ctlplane

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/nftables/binaryutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_MarshalBinary(t *testing.T) {
	b, err := Message{Type: TypeAddIf, Name: "lan"}.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, MessageSize)
	assert.Equal(t, uint32(5), binaryutil.NativeEndian.Uint32(b[:4]))
	assert.Equal(t, []byte("lan"), b[4:7])
	assert.Equal(t, make([]byte, PayloadSize-3), b[7:])

	// The payload is only used for addif and delif.
	b, err = Message{Type: TypeFlush, Name: "lan"}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, PayloadSize), b[4:])

	_, err = Message{Type: TypeAddIf, Name: strings.Repeat("x", PayloadSize)}.MarshalBinary()
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestMessage_UnmarshalBinary(t *testing.T) {
	buf := make([]byte, MessageSize)
	copy(buf, binaryutil.NativeEndian.PutUint32(uint32(TypeDelIf)))
	copy(buf[4:], "wan\x00garbage")

	var m Message
	require.NoError(t, m.UnmarshalBinary(buf))
	assert.Equal(t, Message{Type: TypeDelIf, Name: "wan"}, m)

	// No terminator: the last payload byte is treated as one.
	for i := 4; i < MessageSize; i++ {
		buf[i] = 'a'
	}
	require.NoError(t, m.UnmarshalBinary(buf))
	assert.Len(t, m.Name, PayloadSize-1)

	assert.Error(t, m.UnmarshalBinary(buf[:10]))
}

func TestReadWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{Type: TypeReload}))
	require.NoError(t, WriteMessage(&buf, Message{Type: TypeAddIf, Name: "dmz"}))
	assert.Equal(t, 2*MessageSize, buf.Len())

	m, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeReload, m.Type)
	m, err = ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "dmz", m.Name)

	_, err = ReadMessage(&buf)
	assert.ErrorIs(t, err, io.EOF)

	_, err = ReadMessage(bytes.NewReader(make([]byte, 7)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestType(t *testing.T) {
	assert.Equal(t, "addif", TypeAddIf.String())
	assert.Equal(t, "type(9)", Type(9).String())
	assert.False(t, TypeOK.IsRequest())
	assert.False(t, TypeError.IsRequest())
	assert.True(t, TypeFlush.IsRequest())
	assert.True(t, TypeDelIf.IsRequest())
	assert.False(t, Type(7).IsRequest())

	typ, ok := ParseType("reload")
	assert.True(t, ok)
	assert.Equal(t, TypeReload, typ)
	_, ok = ParseType("restart")
	assert.False(t, ok)
}
