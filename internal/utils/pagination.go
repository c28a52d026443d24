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

// Page clamps a requested page against the total row count and returns the
// offset/limit pair plus the normalized page and page count. page values
// below 1 become 1; values past the last page clamp to it. pageSize values
// below 1 become 1.
func Page(page, pageSize int, total int64) (offset, limit, normPage, pages int) {
	if pageSize < 1 {
		pageSize = 1
	}
	pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return (page - 1) * pageSize, pageSize, page, pages
}
