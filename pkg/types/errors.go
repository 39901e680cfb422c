package types

import "errors"

// Trip record errors
var (
	// ErrShortRecord is returned when a CSV row has fewer fields than a trip record needs
	ErrShortRecord = errors.New("trip record has too few fields")
)
