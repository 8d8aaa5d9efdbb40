package domain

import "errors"

var (
	// ErrArticleNotFound is returned when an article lookup misses.
	ErrArticleNotFound = errors.New("article not found")

	// ErrInvalidQuery is returned for a malformed search request before any
	// store is touched.
	ErrInvalidQuery = errors.New("invalid query")
)
