// Package ftms decodes Fitness Machine Service (FTMS) Treadmill Data notifications.
// See: https://www.bluetooth.com/specifications/specs/fitness-machine-service-1-0/
package ftms

import (
	"errors"
	"fmt"
)

// Fitness Machine Service (FTMS) UUIDs
const (
	ServiceUUIDFTMS        = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDTreadmillData  = "00002acd-0000-1000-8000-00805f9b34fb"
	MinTreadmillDataLength = 3
)

// Treadmill Data flag bit positions, in the order their fields appear
const (
	tdFlagInstantaneousSpeed = 1 << 0 // Bit 0: Instantaneous Speed present
	tdFlagAverageSpeed       = 1 << 1 // Bit 1: Average Speed present
	tdFlagTotalDistance      = 1 << 2 // Bit 2: Total Distance present
	tdFlagInclination        = 1 << 3 // Bit 3: Inclination present
	tdFlagRampAngle          = 1 << 4 // Bit 4: Ramp Angle Setting present
)

// TreadmillReading holds the last known value of each tracked field
type TreadmillReading struct {
	SpeedKmh       float64
	InclinePercent float64
	DistanceM      float64
}

// PaceMinPerKm converts speed to minutes per kilometre, zero when stopped
func (r TreadmillReading) PaceMinPerKm() float64 {
	if r.SpeedKmh <= 0 {
		return 0
	}
	return 60.0 / r.SpeedKmh
}

// PaceString formats pace as m:ss
func (r TreadmillReading) PaceString() string {
	pace := r.PaceMinPerKm()
	minutes := int(pace)
	seconds := int((pace - float64(minutes)) * 60)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func (r TreadmillReading) String() string {
	return fmt.Sprintf("Speed: %5.1f km/h | Pace: %s min/km | Incline: %4.1f%% | Distance: %6.0fm",
		r.SpeedKmh, r.PaceString(), r.InclinePercent, r.DistanceM)
}

// DecodeErrorKind classifies decode failures
type DecodeErrorKind int

const (
	TooShort DecodeErrorKind = iota
)

// ErrTooShort matches any DecodeError of kind TooShort via errors.Is
var ErrTooShort = errors.New("treadmill data too short")

// DecodeError is returned when a payload cannot be decoded at all
type DecodeError struct {
	Kind   DecodeErrorKind
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %d bytes, need at least %d", ErrTooShort, e.Length, MinTreadmillDataLength)
}

func (e *DecodeError) Unwrap() error {
	if e.Kind == TooShort {
		return ErrTooShort
	}
	return nil
}

// Decode parses a Treadmill Data notification on top of previous. Fields not
// flagged in the payload keep their previous value. A flagged field that runs
// past the end of the payload stops decoding; fields decoded before it are
// kept and no error is reported. Decode never reads the clock and does not
// retain payload.
func Decode(payload []byte, previous TreadmillReading) (TreadmillReading, error) {
	if len(payload) < MinTreadmillDataLength {
		return previous, &DecodeError{Kind: TooShort, Length: len(payload)}
	}

	// Flags are first 2 bytes (little-endian UINT16)
	flags := uint16(payload[0]) | (uint16(payload[1]) << 8)
	offset := 2

	reading := previous

	// 1. Instantaneous Speed (UINT16, 0.01 km/h resolution)
	if flags&tdFlagInstantaneousSpeed != 0 {
		if offset+2 > len(payload) {
			return reading, nil
		}
		rawSpeed := uint16(payload[offset]) | (uint16(payload[offset+1]) << 8)
		reading.SpeedKmh = float64(rawSpeed) * 0.01
		offset += 2
	}

	// 2. Average Speed (UINT16, 0.01 km/h resolution), not tracked
	if flags&tdFlagAverageSpeed != 0 {
		if offset+2 > len(payload) {
			return reading, nil
		}
		offset += 2
	}

	// 3. Total Distance (UINT24, 1 meter resolution)
	if flags&tdFlagTotalDistance != 0 {
		if offset+3 > len(payload) {
			return reading, nil
		}
		distance := uint32(payload[offset]) | (uint32(payload[offset+1]) << 8) | (uint32(payload[offset+2]) << 16)
		reading.DistanceM = float64(distance)
		offset += 3
	}

	// 4. Inclination (SINT16, 0.1 percent resolution)
	if flags&tdFlagInclination != 0 {
		if offset+2 > len(payload) {
			return reading, nil
		}
		rawIncline := int16(uint16(payload[offset]) | (uint16(payload[offset+1]) << 8))
		reading.InclinePercent = float64(rawIncline) * 0.1
		offset += 2
	}

	// 5. Ramp Angle Setting (SINT16, 0.1 degree resolution), not tracked
	if flags&tdFlagRampAngle != 0 {
		if offset+2 > len(payload) {
			return reading, nil
		}
		// offset += 2 // Not needed, last parsed field
	}

	return reading, nil
}
