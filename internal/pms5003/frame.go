package pms5003

import (
	"encoding/binary"
	"fmt"

	"pms-exporter/internal/domain"
)

const (
	// FrameLen is the size of one wire frame in bytes.
	FrameLen = 32

	// bodyLen is the value sensors put in the length field: everything after it.
	bodyLen = FrameLen - 4

	checksumOffset = 30
)

// Marker is the two-byte sequence every frame starts with.
var Marker = [2]byte{0x42, 0x4D}

// Parse validates one raw frame and extracts its measurements.
//
// Both marker bytes must match. The length field is not checked.
func Parse(raw [FrameLen]byte) (domain.Frame, error) {
	if raw[0] != Marker[0] || raw[1] != Marker[1] {
		return domain.Frame{}, fmt.Errorf("%w: got %#02x %#02x", ErrHeader, raw[0], raw[1])
	}

	received := binary.BigEndian.Uint16(raw[checksumOffset:])
	computed := checksum(raw[:checksumOffset])
	if received != computed {
		return domain.Frame{}, &ChecksumError{Received: received, Computed: computed}
	}

	return domain.Frame{
		PM10:       field(raw, 4),
		PM25:       field(raw, 6),
		PM100:      field(raw, 8),
		PM10Atmos:  field(raw, 10),
		PM25Atmos:  field(raw, 12),
		PM100Atmos: field(raw, 14),
		Count03:    field(raw, 16),
		Count05:    field(raw, 18),
		Count10:    field(raw, 20),
		Count25:    field(raw, 22),
		Count50:    field(raw, 24),
		Count100:   field(raw, 26),
	}, nil
}

// Encode builds the wire representation of a frame, including the length
// field and a valid checksum.
func Encode(frame domain.Frame) [FrameLen]byte {
	var raw [FrameLen]byte
	raw[0], raw[1] = Marker[0], Marker[1]
	binary.BigEndian.PutUint16(raw[2:], bodyLen)

	values := [...]uint16{
		frame.PM10, frame.PM25, frame.PM100,
		frame.PM10Atmos, frame.PM25Atmos, frame.PM100Atmos,
		frame.Count03, frame.Count05, frame.Count10,
		frame.Count25, frame.Count50, frame.Count100,
	}
	for i, v := range values {
		binary.BigEndian.PutUint16(raw[4+2*i:], v)
	}

	binary.BigEndian.PutUint16(raw[checksumOffset:], checksum(raw[:checksumOffset]))
	return raw
}

// checksum sums the bytes as unsigned integers. 30 bytes cannot overflow uint16.
func checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

func field(raw [FrameLen]byte, offset int) uint16 {
	return binary.BigEndian.Uint16(raw[offset : offset+2])
}
