package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire framing: every frame is a 2-byte big-endian header followed by the
// payload. Bit 15 of the header marks a zlib-compressed payload; bits 14..0
// carry the payload length.
const (
	compressedFlag = 0x8000
	lengthMask     = 0x7FFF

	// MaxPayloadSize is the largest payload a single frame can carry,
	// after the compression choice has been made.
	MaxPayloadSize = 32767
)

var ErrFrameTooLarge = errors.New("frame payload too large")

// WriteFrame frames payload onto w. The payload is compressed when that
// makes it smaller; otherwise it is sent raw with the flag clear. Payloads
// that exceed MaxPayloadSize either way are refused.
func WriteFrame(w io.Writer, payload []byte) error {
	out := payload
	flags := uint16(0)

	if compressed, err := deflate(payload); err == nil && len(compressed) < len(payload) {
		out = compressed
		flags = compressedFlag
	}

	if len(out) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(out))
	}

	var header [2]byte
	binary.BigEndian.PutUint16(header[:], flags|uint16(len(out)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(out)
	return err
}

// ReadFrame reads one frame from r and returns the decoded payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	h := binary.BigEndian.Uint16(header[:])
	length := int(h & lengthMask)

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if h&compressedFlag == 0 {
		return payload, nil
	}
	return inflate(payload)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed payload: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed payload: %w", err)
	}
	return out, nil
}
