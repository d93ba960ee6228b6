package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: []byte{}},
		{name: "small", payload: []byte(`{"type":"KeepAliveInd"}`)},
		{name: "compressible", payload: []byte(strings.Repeat("card name;", 5000))},
		{name: "binaryish", payload: []byte{0x00, 0xFF, 0x80, 0x7F, 0x01}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.payload))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.payload, got)
		})
	}
}

func TestFrameCompressionChoice(t *testing.T) {
	// Highly repetitive payload must go out compressed.
	payload := []byte(strings.Repeat("Lightning Bolt;", 3000))
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))

	header := binary.BigEndian.Uint16(buf.Bytes()[:2])
	assert.NotZero(t, header&compressedFlag, "expected compression flag set")
	assert.Less(t, int(header&lengthMask), len(payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameIncompressiblePayloadSentRaw(t *testing.T) {
	// A short random-ish payload does not shrink under zlib.
	payload := []byte{0x01, 0x9A, 0x45, 0xE2, 0x7B}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))

	header := binary.BigEndian.Uint16(buf.Bytes()[:2])
	assert.Zero(t, header&compressedFlag, "expected raw flag")
	assert.Equal(t, len(payload), int(header&lengthMask))
}

// noisyBytes yields incompressible pseudo-random data without seeding
// global rand.
func noisyBytes(n int) []byte {
	payload := make([]byte, n)
	state := uint32(0x12345678)
	for i := range payload {
		state = state*1664525 + 1013904223
		payload[i] = byte(state >> 24)
	}
	return payload
}

func TestFrameSizeBoundary(t *testing.T) {
	// Incompressible data at exactly the limit is accepted.
	max := noisyBytes(MaxPayloadSize)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, max))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, max, got)

	// One byte over is refused.
	err = WriteFrame(&bytes.Buffer{}, noisyBytes(MaxPayloadSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameOversizeAfterCompression(t *testing.T) {
	// A large payload that stays large after compression is refused even
	// though the raw length field could not describe it either.
	err := WriteFrame(&bytes.Buffer{}, noisyBytes(40000))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello hello hello")))
	data := buf.Bytes()

	_, err := ReadFrame(bytes.NewReader(data[:1]))
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader(data[:len(data)-2]))
	assert.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(TypeLoginReq, LoginReq{
		Name:                 "alice",
		ProtocolVersionMajor: VersionMajor,
		ProtocolVersionMinor: VersionMinor,
	})

	data, err := env.Encode()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, data))
	payload, err := ReadFrame(&buf)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeLoginReq, decoded.Type)

	var req LoginReq
	require.NoError(t, decoded.Decode(&req))
	assert.Equal(t, "alice", req.Name)
	assert.Equal(t, VersionMajor, req.ProtocolVersionMajor)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err, "missing type must be rejected")
}
