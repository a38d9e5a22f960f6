package script

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/vimbot/internal/errors"
	"github.com/Iron-Ham/vimbot/internal/logging"
)

// Target is the server a script drives.
type Target interface {
	SendKeys(ctx context.Context, keys string) error
	Evaluate(ctx context.Context, expr string) (string, error)
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int
	Step   Step
	Output string
	Err    error
	Passed bool
	// Message explains a failure.
	Message string
}

// Report collects the results of a run. Steps skipped after a failure
// have no result.
type Report struct {
	Results []StepResult
	Total   int
}

// Passed reports whether every step ran and passed.
func (r Report) Passed() bool {
	return r.Failed() == 0 && len(r.Results) == r.Total
}

// Failed returns the number of failed steps.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed {
			n++
		}
	}
	return n
}

// Skipped returns the number of steps that did not run.
func (r Report) Skipped() int {
	return r.Total - len(r.Results)
}

// Run executes the steps in order against target. It stops after the first
// failing step unless ContinueOnFailure is set, or when ctx ends.
func Run(ctx context.Context, target Target, s *Script, logger *logging.Logger) Report {
	if logger == nil {
		logger = logging.NopLogger()
	}

	report := Report{Total: len(s.Steps)}
	for i, st := range s.Steps {
		if ctx.Err() != nil {
			break
		}

		res := runStep(ctx, target, st)
		res.Index = i
		report.Results = append(report.Results, res)

		if res.Passed {
			logger.Debug("step passed", "step", i, "action", st.String())
			continue
		}
		logger.Warn("step failed", "step", i, "action", st.String(), "reason", res.Message)
		if !s.ContinueOnFailure {
			break
		}
	}
	return report
}

func runStep(ctx context.Context, target Target, st Step) StepResult {
	res := StepResult{Step: st}

	switch {
	case st.Send != nil:
		res.Err = target.SendKeys(ctx, *st.Send)
	case st.Eval != nil:
		res.Output, res.Err = target.Evaluate(ctx, *st.Eval)
	default:
		res.Message = "step has neither send nor eval"
		return res
	}

	if st.ExpectError != "" {
		want, _ := errors.ParseKind(st.ExpectError)
		got := errors.KindOf(res.Err)
		res.Passed = got == want
		if !res.Passed {
			res.Message = fmt.Sprintf("expected %s error, got %s", want, describe(res.Err, got))
		}
		return res
	}

	if res.Err != nil {
		res.Message = res.Err.Error()
		return res
	}

	if st.Expect != nil && res.Output != *st.Expect {
		res.Message = fmt.Sprintf("expected %q, got %q", *st.Expect, res.Output)
		return res
	}

	res.Passed = true
	return res
}

func describe(err error, k errors.Kind) string {
	if err == nil {
		return "success"
	}
	if k == errors.KindUnknown {
		return err.Error()
	}
	return k.String()
}
