package config

import (
	"strconv"
	"strings"
)

// Atoi parses the longest leading integer of s the way C atoi does. complete
// is false when s had trailing garbage or no digits at all.
func Atoi(s string) (n int, complete bool) {
	t := strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(t) && (t[end] == '+' || t[end] == '-') {
		end++
	}
	digits := end
	for end < len(t) && t[end] >= '0' && t[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(t[:end])
	if err != nil {
		return 0, false
	}
	return v, end == len(t)
}

// Atof parses the longest leading decimal float of s the way C atof does.
func Atof(s string) (f float64, complete bool) {
	t := strings.TrimLeft(s, " \t\n\r\v\f")
	for end := len(t); end > 0; end-- {
		v, err := strconv.ParseFloat(t[:end], 64)
		if err == nil {
			return v, end == len(t)
		}
	}
	return 0, false
}
