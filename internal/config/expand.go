package config

import (
	"os"
	"regexp"
)

var envPlaceholder = regexp.MustCompile(`(?i)\$\{ENV:([A-Z0-9_]+)(\|[^}]*)?\}`)

// ExpandEnv replaces ${ENV:VAR} and ${ENV:VAR|default} with the variable's
// value. An unset variable yields the default, or "" without one; a
// variable set to the empty string stays empty.
func ExpandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPlaceholder.FindStringSubmatch(m)
		if val, ok := os.LookupEnv(parts[1]); ok {
			return val
		}
		if parts[2] != "" {
			return parts[2][1:]
		}
		return ""
	})
}
