package tool

import (
	"encoding/json"
	"fmt"
)

// CacheKey builds the stable per-session cache key for a tool call:
// name + "|" + canonical JSON of the arguments. encoding/json sorts map keys
// and emits no whitespace, so semantically equal argument maps always produce
// the same key regardless of how the model ordered them.
func CacheKey(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return name + "|" + fmt.Sprint(args)
	}
	return name + "|" + string(data)
}
