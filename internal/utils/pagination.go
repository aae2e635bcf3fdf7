// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Limit parses a page size, falling back to def when absent, unparsable or
// below 1, and capping it at max.
func Limit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n < 1 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// Offset parses a non-negative row offset; anything else is 0.
func Offset(s string) int {
	if n := AtoiDefault(s, 0); n > 0 {
		return n
	}
	return 0
}

// ParseBoolDefault parses s with strconv.ParseBool, returning def when s is
// empty or invalid.
func ParseBoolDefault(s string, def bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return def
}
