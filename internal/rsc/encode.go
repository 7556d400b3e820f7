// Package rsc encodes Running Speed and Cadence (RSC) characteristic values.
// See: https://www.bluetooth.com/specifications/specs/running-speed-and-cadence-service-1-0/
package rsc

import (
	"encoding/binary"
	"math"
	"time"
)

// Bluetooth SIG UUIDs for the Running Speed and Cadence service
const (
	ServiceUUIDRSC         = "00001814-0000-1000-8000-00805f9b34fb"
	CharUUIDRSCMeasurement = "00002a53-0000-1000-8000-00805f9b34fb"
	CharUUIDRSCFeature     = "00002a54-0000-1000-8000-00805f9b34fb"
)

// RSC Measurement flag bits
const (
	measurementFlagStrideLength  = 1 << 0 // Bit 0: Instantaneous Stride Length present
	measurementFlagTotalDistance = 1 << 1 // Bit 1: Total Distance present
	measurementFlagRunning       = 1 << 2 // Bit 2: 0 = walking, 1 = running
)

// MeasurementFlags is sent unconditionally; every record carries the same layout
const MeasurementFlags = measurementFlagStrideLength | measurementFlagTotalDistance | measurementFlagRunning

// RSC Feature bits
const (
	featureStrideLength            = 1 << 0 // Bit 0: Instantaneous Stride Length Measurement supported
	featureTotalDistance           = 1 << 1 // Bit 1: Total Distance Measurement supported
	featureWalkingOrRunning        = 1 << 2 // Bit 2: Walking or Running Status supported
	SupportedFeatures       uint16 = featureStrideLength | featureTotalDistance | featureWalkingOrRunning
)

// MeasurementLength is the fixed size of an encoded RSC Measurement
const MeasurementLength = 10

// EncodeMeasurement builds an RSC Measurement record:
//
//	[0]    flags
//	[1:3]  speed, UINT16, 1/256 m/s
//	[3]    cadence, UINT8, steps/min
//	[4:6]  stride length, UINT16, cm
//	[6:10] total distance, UINT32, dm
//
// Values outside a field's range are clamped, never wrapped.
func EncodeMeasurement(s *PaceState) []byte {
	buf := make([]byte, MeasurementLength)
	buf[0] = MeasurementFlags
	binary.LittleEndian.PutUint16(buf[1:3], clampUint16(s.SpeedMps*256))
	buf[3] = s.CadenceRPM
	binary.LittleEndian.PutUint16(buf[4:6], clampUint16(s.StrideLengthM*100))
	binary.LittleEndian.PutUint32(buf[6:10], clampUint32(s.TotalDistanceM*10))
	return buf
}

// EncodeFeature returns the RSC Feature value
func EncodeFeature() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, SupportedFeatures)
	return buf
}

// AdvanceAndEncode integrates elapsed time into s and then encodes it, so
// the record always reflects the latest tick.
func AdvanceAndEncode(s *PaceState, now time.Time) []byte {
	s.Advance(now)
	return EncodeMeasurement(s)
}

func clampUint16(v float64) uint16 {
	r := math.Round(v)
	if math.IsNaN(r) || r <= 0 {
		return 0
	}
	if r >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(r)
}

func clampUint32(v float64) uint32 {
	r := math.Round(v)
	if math.IsNaN(r) || r <= 0 {
		return 0
	}
	if r >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}
