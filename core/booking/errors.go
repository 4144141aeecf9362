package booking

import "errors"

// ErrUnknownCategory is returned when a category name or value is not part of
// the configured enumeration.
var ErrUnknownCategory = errors.New("unknown lesson category")
