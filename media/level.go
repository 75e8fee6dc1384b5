// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package media

import "math"

// PCMLevel maps the RMS energy of a signed 16-bit PCM frame to 0..100,
// where a full-scale sine wave reads 100 and silence reads 0.
func PCMLevel(frame []int16) int {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range frame {
		value := float64(sample)
		sum += value * value
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	level := int(math.Round(rms * math.Sqrt2 / math.MaxInt16 * 100))
	return min(max(level, 0), 100)
}

// toneFrame fills frame with a sine wave of the given frequency and
// amplitude (fraction of full scale), starting at sample offset.
func toneFrame(frame []int16, offset int, sampleRate, frequency, amplitude float64) {
	for index := range frame {
		t := float64(offset+index) / sampleRate
		frame[index] = int16(amplitude * math.MaxInt16 * math.Sin(2*math.Pi*frequency*t))
	}
}
