package config

import "errors"

// Sentinel errors for the Config error kind in spec §7. Wrap these with
// fmt.Errorf("%w: ...") so callers can still errors.Is against the kind.
var (
	ErrUnsupportedProvider = errors.New("config: unsupported database provider")
	ErrInvalidStructure    = errors.New("config: invalid structure")
	ErrInvalidColumn       = errors.New("config: invalid column definition")
	ErrInvalidLogtable     = errors.New("config: invalid logtable definition")
)

// ValidationError aggregates every validation failure found in one pass,
// rather than stopping at the first — library callers should see the
// whole picture without retrying once per fix.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "config: " + e.Problems[0]
	}
	msg := "config: multiple problems found:"
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidStructure
}
