// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"errors"
	"math"
)

// Calibration converts a raw capture buffer into a measurement.
//
// # Description
//
// The device raises a GPIO for the duration of the password check. The
// measurement is the number of samples above Threshold, divided by Divisor.
// Divisor depends on the instrument's time base and vertical scaling and has
// no universal value; calibrate it with `timingoracle probe`.
type Calibration struct {
	// Threshold is the raw sample value a "high" sample must exceed.
	Threshold uint8 `yaml:"threshold"`

	// Divisor scales the high-sample count. Must be positive.
	Divisor float64 `yaml:"divisor"`
}

// DefaultCalibration counts samples above mid-scale without scaling.
func DefaultCalibration() Calibration {
	return Calibration{Threshold: 128, Divisor: 1}
}

// Validate reports whether the calibration is usable.
func (c Calibration) Validate() error {
	if c.Divisor <= 0 || math.IsNaN(c.Divisor) || math.IsInf(c.Divisor, 0) {
		return errors.New("calibration divisor must be a positive finite number")
	}
	return nil
}

// Measure returns count(samples > Threshold) / Divisor.
func (c Calibration) Measure(samples []byte) float64 {
	high := 0
	for _, s := range samples {
		if s > c.Threshold {
			high++
		}
	}
	if c.Divisor <= 0 {
		return float64(high)
	}
	return float64(high) / c.Divisor
}
