package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/expgrid/expgrid/internal/dispatch"
	"github.com/expgrid/expgrid/internal/result"
	"github.com/expgrid/expgrid/internal/worker"
)

// exitPaused is the exit status a routine command returns to request a
// checkpoint-and-stop instead of a done/error outcome, borrowed from the
// BSD sysexits.h EX_TEMPFAIL code for "try again later".
const exitPaused = 75

var (
	runWorkers     int
	runBound       int
	runRandomOrder bool
	runWaitForWork bool
	runCommand     []string
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Claim open experiments and run the given command once per experiment",
	Long: `run launches a pool of workers, each repeatedly claiming one open
experiment and executing <command> for it. Keyfield values are exposed to
the command as EXPGRID_<NAME> environment variables and the experiment id
as EXPGRID_EXPERIMENT_ID. Command arguments may reference keyfields via
Go template syntax, e.g. "{{.learning_rate}}".

The command's exit status decides the outcome: 0 means done, 75 (EX_TEMPFAIL)
means paused, anything else means error (with captured stderr recorded).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runCommand = args
		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		opts := worker.Options{
			Workers:     runWorkers,
			Bound:       runBound,
			RandomOrder: runRandomOrder,
			WaitForWork: runWaitForWork,
		}

		return e.Execute(cmd.Context(), opts, runRoutine)
	},
}

func runRoutine(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) worker.Outcome {
	renderedArgs := make([]string, len(runCommand))
	for i, arg := range runCommand {
		rendered, err := renderTemplate(arg, exp.Keyfields)
		if err != nil {
			return worker.Error(fmt.Errorf("rendering argument %q: %w", arg, err))
		}
		renderedArgs[i] = rendered
	}

	command := exec.CommandContext(ctx, renderedArgs[0], renderedArgs[1:]...)
	command.Env = append(command.Environ(), envForExperiment(exp)...)

	var stderr bytes.Buffer
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return worker.Done()
	}

	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) && exitErr.ExitCode() == exitPaused {
		return worker.Paused()
	}
	return worker.Error(fmt.Errorf("%w: %s", err, stderr.String()))
}

func asExitError(err error, target **exec.ExitError) bool {
	exitErr, ok := err.(*exec.ExitError)
	if ok {
		*target = exitErr
	}
	return ok
}

func envForExperiment(exp *dispatch.Experiment) []string {
	env := []string{"EXPGRID_EXPERIMENT_ID=" + strconv.FormatInt(exp.ID, 10)}
	for name, value := range exp.Keyfields {
		env = append(env, "EXPGRID_"+name+"="+fmt.Sprintf("%v", value))
	}
	return env
}

func renderTemplate(text string, keyfields map[string]any) (string, error) {
	tmpl, err := template.New("arg").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, keyfields); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func init() {
	runCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "number of concurrent worker goroutines")
	runCmd.Flags().IntVar(&runBound, "bound", 0, "maximum number of experiments to execute, 0 for unbounded")
	runCmd.Flags().BoolVar(&runRandomOrder, "random-order", false, "claim experiments in random order instead of id order")
	runCmd.Flags().BoolVar(&runWaitForWork, "wait", false, "keep polling for new experiments instead of exiting when none are open")
	rootCmd.AddCommand(runCmd)
}
