package rsc

import (
	"fmt"
	"time"
)

// PaceState is a constant-pace runner model. Speed, cadence and stride are
// fixed at construction; total distance grows as time is integrated.
type PaceState struct {
	SpeedKmh       float64
	SpeedMps       float64
	CadenceRPM     uint8
	StrideLengthM  float64
	TotalDistanceM float64
	LastUpdate     time.Time
}

// NewPaceState derives speed in m/s and stride length from the configured
// pace. A cadence of zero leaves stride length at zero.
func NewPaceState(speedKmh float64, cadenceRPM uint8, now time.Time) *PaceState {
	speedMps := speedKmh / 3.6
	stride := 0.0
	if cadenceRPM > 0 {
		stride = speedMps / (float64(cadenceRPM) / 60.0)
	}
	return &PaceState{
		SpeedKmh:      speedKmh,
		SpeedMps:      speedMps,
		CadenceRPM:    cadenceRPM,
		StrideLengthM: stride,
		LastUpdate:    now,
	}
}

// Advance integrates the wall-clock time elapsed since the last update into
// the total distance. Time running backwards counts as zero elapsed.
func (s *PaceState) Advance(now time.Time) {
	elapsed := now.Sub(s.LastUpdate)
	if elapsed > 0 {
		s.TotalDistanceM += s.SpeedMps * elapsed.Seconds()
	}
	s.LastUpdate = now
}

// Rebase moves the update timestamp without integrating distance
func (s *PaceState) Rebase(now time.Time) {
	s.LastUpdate = now
}

// PaceMinPerKm is minutes per kilometre, or zero when stationary
func (s *PaceState) PaceMinPerKm() float64 {
	if s.SpeedKmh <= 0 {
		return 0
	}
	return 60.0 / s.SpeedKmh
}

func (s *PaceState) String() string {
	return fmt.Sprintf("distance %.1fm | speed %.1f km/h | cadence %d RPM", s.TotalDistanceM, s.SpeedKmh, s.CadenceRPM)
}
