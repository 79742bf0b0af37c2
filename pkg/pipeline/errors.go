// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks requests rejected before any stage ran.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream marks failures of external dependencies during a stage.
	ErrUpstream = errors.New("upstream failure")

	// ErrPipelineTimeout marks runs cut off by the mode's time budget.
	ErrPipelineTimeout = errors.New("pipeline timeout")
)

// InputError rejects a malformed request. No stage runs and nothing is
// cached for it.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s", e.Message)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NewInputError creates an InputError for a request field.
func NewInputError(field, message string) *InputError {
	return &InputError{Field: field, Message: message}
}

// IsInputError reports whether err is a request validation failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// UpstreamError wraps a dependency failure with the stage it surfaced in.
// A mandatory stage propagates it and fails the run; an optional stage
// only records it in the trace.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stage %s: upstream failure: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUpstream) match without losing the cause chain.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// NewUpstreamError wraps a dependency failure.
func NewUpstreamError(stage string, err error) *UpstreamError {
	return &UpstreamError{Stage: stage, Err: err}
}

// IsUpstreamError reports whether err is a dependency failure.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// TimeoutError reports that the mode's overall budget elapsed. Partial
// carries everything the completed stages produced.
type TimeoutError struct {
	Stage   string
	Mode    Mode
	Partial *State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline timed out in stage %s (mode %s)", e.Stage, e.Mode)
}

func (e *TimeoutError) Unwrap() error { return ErrPipelineTimeout }

// IsTimeoutError reports whether err is a pipeline budget timeout.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrPipelineTimeout)
}
