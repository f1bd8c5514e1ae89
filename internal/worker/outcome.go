package worker

// Kind discriminates the three ways a routine can finish.
type Kind int

const (
	// KindDone means the experiment completed successfully.
	KindDone Kind = iota
	// KindError means the experiment's routine returned an error.
	KindError
	// KindPaused means the routine asked to checkpoint and stop without
	// marking the experiment done or errored.
	KindPaused
)

// Outcome is the tagged result a routine reports for one claimed
// experiment, replacing the original project's reliance on raised
// exceptions (ExperimentStatus transitions driven by exception type) for
// control flow.
type Outcome struct {
	Kind Kind
	Err  error // set when Kind == KindError
}

// Done reports successful completion.
func Done() Outcome { return Outcome{Kind: KindDone} }

// Error reports failure with err as the recorded error message.
func Error(err error) Outcome { return Outcome{Kind: KindError, Err: err} }

// Paused reports a voluntary checkpoint-and-stop.
func Paused() Outcome { return Outcome{Kind: KindPaused} }
