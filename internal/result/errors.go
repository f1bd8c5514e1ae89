package result

import "errors"

// ErrInvalidResultField is returned by ProcessResults when a result key
// is not one of the configured resultfields (or their timestamp
// columns).
var ErrInvalidResultField = errors.New("result: invalid result field")

// ErrInvalidLogtable is returned when writing to a logtable suffix that
// was not declared in the configuration.
var ErrInvalidLogtable = errors.New("result: invalid logtable")

// ErrInvalidLogtableColumn is returned when a logged row carries a
// column not declared on its logtable.
var ErrInvalidLogtableColumn = errors.New("result: invalid logtable column")
