package pms5003

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is the root of every frame validation failure.
	ErrInvalidFrame = errors.New("pms5003: invalid frame")

	// ErrHeader indicates the frame does not start with the marker.
	ErrHeader = fmt.Errorf("%w: header mismatch", ErrInvalidFrame)

	// ErrChecksum indicates the trailing checksum does not match the frame body.
	ErrChecksum = fmt.Errorf("%w: checksum mismatch", ErrInvalidFrame)
)

// ChecksumError carries both checksums of a rejected frame.
type ChecksumError struct {
	Received uint16
	Computed uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("pms5003: received checksum (%d) did not match calculated checksum (%d)", e.Received, e.Computed)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}
