package logic

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Messages sent for each button reading. The last digit is the pin level.
const (
	MessagePressed  = "test00010"
	MessageReleased = "test00011"
)

// PayloadLen is the size of an encoded payload: message plus timestamp.
const PayloadLen = MessageLen + 4

// SelectMessage returns the message for a button reading.
func SelectMessage(pressed bool) string {
	if pressed {
		return MessagePressed
	}
	return MessageReleased
}

// EncodePayload packs msg into a zero-padded MessageLen field followed by
// the little-endian timestamp. Messages longer than MessageLen are cut.
func EncodePayload(msg string, timestampMs uint32) []byte {
	buf := make([]byte, PayloadLen)
	copy(buf[:MessageLen], msg)
	binary.LittleEndian.PutUint32(buf[MessageLen:], timestampMs)
	return buf
}

// DecodePayload is the receiver side of EncodePayload.
func DecodePayload(p []byte) (msg string, timestampMs uint32, err error) {
	if len(p) != PayloadLen {
		return "", 0, fmt.Errorf("payload length %d, want %d", len(p), PayloadLen)
	}
	field := p[:MessageLen]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field), binary.LittleEndian.Uint32(p[MessageLen:]), nil
}
