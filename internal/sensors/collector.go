// Package sensors reads hardware temperatures through lm-sensors.
package sensors

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (
	thermalZoneTempPath = "/sys/class/thermal/thermal_zone0/temp"
	collectTimeout      = 5 * time.Second
)

// CollectLocal reads sensor data from the local machine using lm-sensors.
// Returns the raw JSON output from `sensors -j` or an error if sensors is not available.
func CollectLocal(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := exec.LookPath("sensors"); err != nil {
		return "", fmt.Errorf("lm-sensors not installed: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	// sensors exits non-zero when optional subfeatures fail; "|| true" keeps the JSON for parsing
	cmd := exec.CommandContext(cmdCtx, "sh", "-c", "sensors -j 2>/dev/null || true")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to execute sensors: %w", err)
	}

	outputStr := strings.TrimSpace(string(output))
	if outputStr == "" || outputStr == "{}" {
		if fallback, ok := readThermalZone(); ok {
			return fallback, nil
		}
		return "", fmt.Errorf("sensors returned empty output")
	}

	return outputStr, nil
}

// readThermalZone converts the kernel thermal zone reading into sensors -j shape.
func readThermalZone() (string, bool) {
	raw, err := os.ReadFile(thermalZoneTempPath)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", false
	}
	// Linux thermal_zone values are commonly millidegrees (e.g. 42000).
	if parsed >= 1000 || parsed <= -1000 {
		parsed = parsed / 1000.0
	}
	return fmt.Sprintf(`{"cpu_thermal-virtual-0":{"temp1":{"temp1_input":%s}}}`,
		strconv.FormatFloat(parsed, 'f', -1, 64)), true
}
