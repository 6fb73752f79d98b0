package domain

import "errors"

var (
	// ErrNotFound means nothing is available for the request: no cell within
	// the search radius, no run data for the cell, or an unknown place.
	ErrNotFound = errors.New("not found")

	ErrInvalidRun   = errors.New("invalid run identifier")
	ErrInvalidUnits = errors.New("invalid unit system")
)
