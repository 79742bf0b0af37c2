package config

import (
	"os"
	"regexp"
	"strings"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references with environment
// values. Unset variables without a default expand to the empty string.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name := groups[1]
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if groups[2] != "" {
			return groups[3]
		}
		return ""
	})
}

// ExpandEnvMap expands environment references in every string value of a
// generic options map, recursing into nested maps.
func ExpandEnvMap(options map[string]interface{}) map[string]interface{} {
	if options == nil {
		return nil
	}
	out := make(map[string]interface{}, len(options))
	for k, v := range options {
		switch val := v.(type) {
		case string:
			if strings.Contains(val, "${") {
				out[k] = ExpandEnv(val)
			} else {
				out[k] = val
			}
		case map[string]interface{}:
			out[k] = ExpandEnvMap(val)
		default:
			out[k] = v
		}
	}
	return out
}
