// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

// Two-tailed 95% critical values of the t-distribution, keyed by
// sample size. Small runs get a wider interval than the normal
// approximation would give.
var tCritical = map[int]float64{
	2:  12.706,
	3:  4.303,
	4:  3.182,
	5:  2.776,
	6:  2.571,
	7:  2.447,
	8:  2.365,
	9:  2.306,
	10: 2.262,
	12: 2.201,
	15: 2.145,
	20: 2.093,
	25: 2.064,
	30: 2.045,
}

// zCritical is the large-sample normal critical value at 95%.
const zCritical = 1.96

// criticalValue returns the 95% critical value for a sample of size n.
// For n < 30 the t-table entry with the nearest tabulated sample size
// is used; from 30 up the normal approximation applies.
func criticalValue(n int) float64 {
	if n >= 30 {
		return zCritical
	}
	if v, ok := tCritical[n]; ok {
		return v
	}

	// Nearest tabulated key; ties resolve to the smaller sample size
	// (the more conservative, wider interval).
	best := 0
	bestDist := 1 << 30
	for k := range tCritical {
		dist := k - n
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist || (dist == bestDist && k < best) {
			best = k
			bestDist = dist
		}
	}
	return tCritical[best]
}
