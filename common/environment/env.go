// Package environment layers environment variables over configuration that
// was already populated from defaults or a file.
//
// Every helper takes a pointer to the field being configured plus one or more
// variable names. The first variable that is set and parses cleanly wins; if
// none do, the field is left untouched. Nothing here calls os.Exit.
package environment

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the value of the first named variable that is set to a
// non-empty value.
func Lookup(names ...string) (string, bool) {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

// String overwrites *dst with the first non-empty variable among names.
func String(dst *string, names ...string) {
	if v, ok := Lookup(names...); ok {
		*dst = v
	}
}

// Int overwrites *dst with the first variable among names that parses as a
// decimal integer.
func Int(dst *int, names ...string) {
	for _, name := range names {
		v, ok := Lookup(name)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
			return
		}
	}
}

// Bool overwrites *dst with the first variable among names accepted by
// strconv.ParseBool.
func Bool(dst *bool, names ...string) {
	for _, name := range names {
		v, ok := Lookup(name)
		if !ok {
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
			return
		}
	}
}

// Duration overwrites *dst with the first variable among names accepted by
// time.ParseDuration ("15s", "5m").
func Duration(dst *time.Duration, names ...string) {
	for _, name := range names {
		v, ok := Lookup(name)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
	}
}

// StringSlice overwrites *dst with the comma-separated elements of the first
// non-empty variable among names. Blank elements are dropped; a variable that
// holds only separators leaves *dst unchanged.
func StringSlice(dst *[]string, names ...string) {
	v, ok := Lookup(names...)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
