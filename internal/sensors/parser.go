package sensors

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Parse flattens sensors -j JSON output into "chip/feature" -> celsius.
// Features without a temp*_input reading are skipped.
func Parse(jsonStr string) (map[string]float64, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return nil, fmt.Errorf("empty sensors output")
	}

	var sensorsData map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &sensorsData); err != nil {
		return nil, fmt.Errorf("failed to parse sensors JSON: %w", err)
	}

	readings := make(map[string]float64)
	for chipName, chipData := range sensorsData {
		chipMap, ok := chipData.(map[string]interface{})
		if !ok {
			continue
		}

		for featureName, featureData := range chipMap {
			featureMap, ok := featureData.(map[string]interface{})
			if !ok {
				continue
			}
			if tempVal := extractTempInput(featureMap); !math.IsNaN(tempVal) {
				readings[chipName+"/"+featureName] = tempVal
			}
		}
	}

	log.Debug().
		Int("readings", len(readings)).
		Int("chips", len(sensorsData)).
		Msg("Parsed temperature data")

	return readings, nil
}

// extractTempInput returns the lowest-numbered temp*_input value, or NaN.
func extractTempInput(featureMap map[string]interface{}) float64 {
	keys := make([]string, 0, len(featureMap))
	for key := range featureMap {
		if strings.HasPrefix(key, "temp") && strings.HasSuffix(key, "_input") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := featureMap[key].(type) {
		case float64:
			return v
		case string:
			// Some ARM boards report millidegrees as a string
			var milliTemp float64
			if _, err := fmt.Sscanf(v, "%f", &milliTemp); err == nil {
				return milliTemp / 1000.0
			}
		}
	}
	return math.NaN()
}
