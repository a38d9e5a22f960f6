// Package script runs YAML step files against a vim server. A step either
// sends keys or evaluates an expression, optionally checking the result.
//
//	vimrc: fixtures/minimal.vim
//	steps:
//	  - send: "ifoo<Esc>"
//	  - eval: "getline('.')"
//	    expect: "foo"
//	  - eval: "1 + []"
//	    expect_error: invalid_expression
package script

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/vimbot/internal/config"
	"github.com/Iron-Ham/vimbot/internal/errors"
)

// Script is a parsed step file.
type Script struct {
	// Vimrc and Gvimrc override the session's config files when set.
	Vimrc  string `yaml:"vimrc,omitempty"`
	Gvimrc string `yaml:"gvimrc,omitempty"`

	// ContinueOnFailure runs every step even after one fails.
	ContinueOnFailure bool `yaml:"continue_on_failure,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one action. Exactly one of Send and Eval is set.
type Step struct {
	Send *string `yaml:"send,omitempty"`
	Eval *string `yaml:"eval,omitempty"`

	// Expect is compared with the result of Eval.
	Expect *string `yaml:"expect,omitempty"`
	// ExpectError names the error kind the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// String describes the step for reports.
func (s Step) String() string {
	switch {
	case s.Send != nil:
		return "send " + strconv.Quote(*s.Send)
	case s.Eval != nil:
		return "eval " + strconv.Quote(*s.Eval)
	default:
		return "empty step"
	}
}

// Parse decodes and validates a step file. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return &s, nil
}

// Load reads and parses the step file at path.
func Load(fs afero.Fs, path string) (*Script, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// remoteKinds are the kinds a step may expect.
var remoteKinds = map[errors.Kind]bool{
	errors.KindInvalidInput:      true,
	errors.KindInvalidExpression: true,
}

// Validate checks every step and returns all problems found.
func (s *Script) Validate() []config.ValidationError {
	var errs []config.ValidationError

	if len(s.Steps) == 0 {
		errs = append(errs, config.ValidationError{
			Field:   "steps",
			Value:   0,
			Message: "must contain at least one step",
		})
	}

	for i, st := range s.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		switch {
		case st.Send == nil && st.Eval == nil:
			errs = append(errs, config.ValidationError{
				Field: field, Value: "none", Message: "must have one of send or eval",
			})
		case st.Send != nil && st.Eval != nil:
			errs = append(errs, config.ValidationError{
				Field: field, Value: "send+eval", Message: "must have only one of send or eval",
			})
		}

		if st.Expect != nil && st.Eval == nil {
			errs = append(errs, config.ValidationError{
				Field: field + ".expect", Value: *st.Expect, Message: "is only valid with eval",
			})
		}

		if st.ExpectError != "" {
			if st.Expect != nil {
				errs = append(errs, config.ValidationError{
					Field: field + ".expect_error", Value: st.ExpectError, Message: "cannot be combined with expect",
				})
			}
			if k, ok := errors.ParseKind(st.ExpectError); !ok || !remoteKinds[k] {
				errs = append(errs, config.ValidationError{
					Field:   field + ".expect_error",
					Value:   st.ExpectError,
					Message: "must be invalid_input or invalid_expression",
				})
			}
		}
	}

	return errs
}
