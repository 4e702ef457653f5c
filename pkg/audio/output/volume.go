// ABOUTME: Software volume for s16le PCM
// ABOUTME: Scales samples with clipping protection
package output

import (
	"encoding/binary"
	"math"
)

// applyVolume applies volume and mute to s16le bytes with clipping protection.
// At full volume the input is returned unchanged.
func applyVolume(data []byte, volume int, muted bool) []byte {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		return data
	}

	result := make([]byte, len(data))
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		scaled := int64(float64(sample) * multiplier)

		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}

		binary.LittleEndian.PutUint16(result[i:], uint16(int16(scaled)))
	}
	if len(data)%2 == 1 {
		result[len(data)-1] = data[len(data)-1]
	}
	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(clampVolume(volume)) / 100.0
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
