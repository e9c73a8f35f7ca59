package domain

import "time"

// Frame holds the twelve measurements carried by one validated sensor frame.
// Concentrations are in µg/m³, counts are particles per 0.1L of air.
type Frame struct {
	// Mass concentration corrected for standard atmosphere.
	PM10  uint16
	PM25  uint16
	PM100 uint16

	// Mass concentration in the current atmosphere.
	PM10Atmos  uint16
	PM25Atmos  uint16
	PM100Atmos uint16

	// Particles larger than 0.3, 0.5, 1.0, 2.5, 5.0 and 10.0 µm.
	Count03  uint16
	Count05  uint16
	Count10  uint16
	Count25  uint16
	Count50  uint16
	Count100 uint16
}

// Reading is a frame stamped with the time it was received.
type Reading struct {
	Frame     Frame
	Timestamp time.Time
}
