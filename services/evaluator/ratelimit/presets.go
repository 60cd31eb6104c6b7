// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"strings"
)

// Provider presets reflect the published default rate tiers of the
// supported backends. Local models are effectively unthrottled.
var presets = map[string]Config{
	"openai": {
		RequestsPerMinute: 500,
		BurstSize:         50,
	},
	"anthropic": {
		RequestsPerMinute: 300,
		BurstSize:         30,
	},
	"ollama": {
		RequestsPerMinute: 10000,
		BurstSize:         100,
	},
	"local": {
		RequestsPerMinute: 10000,
		BurstSize:         100,
	},
}

// defaultPreset is used for unrecognized providers: conservative enough
// not to trip any backend's limits.
var defaultPreset = Config{
	RequestsPerMinute: 60,
	BurstSize:         10,
}

// PresetFor returns the rate limiter configuration for a model
// provider. Unknown providers get a conservative default.
func PresetFor(provider string) Config {
	if cfg, ok := presets[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return cfg
	}
	return defaultPreset
}

// ForProvider builds a ready-to-use limiter for a provider preset.
func ForProvider(provider string) (*TokenBucket, error) {
	return New(PresetFor(provider))
}
