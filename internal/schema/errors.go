package schema

import "errors"

// ErrParameterCombination is returned by Fill* methods when the keyfield
// values they were given cannot be resolved into rows: a keyfield is
// named by both the product domains and a fixed combination, a row does
// not cover exactly the declared keyfield set, or resolution yields no
// rows at all.
var ErrParameterCombination = errors.New("schema: invalid parameter combination")

// ErrWrongStructure is returned when an existing table's declared
// columns do not match the configuration.
var ErrWrongStructure = errors.New("schema: existing table structure does not match configuration")

// ErrNoExperimentsLeft describes the state where no row is "created". No
// function in this package returns it; dispatch.Claim returns
// dispatch.ErrNoExperimentsLeft.
var ErrNoExperimentsLeft = errors.New("schema: no experiments left to execute")

// ErrNoPausedExperiment describes a requested id that is not "paused". No
// function in this package returns it; dispatch.Resume returns
// dispatch.ErrNoPausedExperiment.
var ErrNoPausedExperiment = errors.New("schema: no paused experiment with that id")
