// Package domain defines the core domain types of the analysis pipeline.
//
// This package contains concept-oriented files (dates.go, errors.go, domain.go)
// with shared types and the field conventions every CSV artifact uses. No
// implementation code - just contracts. Prevents circular imports by keeping
// the data model in one dependency-free place.
package domain
