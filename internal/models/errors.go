package models

import "errors"

// ErrNoData is wrapped by every "the source had nothing for this input" error.
var ErrNoData = errors.New("no data")
