package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Key derives a deterministic cache key from an operation name and its
// parameters. Parameter names are sorted, nil-valued parameters are dropped
// and each value is rendered as JSON, so the same logical request maps to the
// same key regardless of how the parameter map was built.
func Key(prefix string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if isUndefined(value) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+encodeValue(params[name]))
	}
	return prefix + ":" + strings.Join(parts, ",")
}

func isUndefined(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func encodeValue(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}
