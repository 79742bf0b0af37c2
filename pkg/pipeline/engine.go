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
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/recapd/recapd/pkg/config"
)

// StageObserver receives per-stage timing, for metrics.
type StageObserver interface {
	ObserveStage(stage string, status StageStatus, seconds float64)
}

// Engine sequences stages per mode and feature flags and enforces the
// mode's overall time budget. It holds one instance of each stage; stages
// are stateless between runs apart from the state they are handed.
type Engine struct {
	cfg      *config.PipelineConfig
	stages   map[string]Stage
	logger   *slog.Logger
	tracer   trace.Tracer
	observer StageObserver
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithTracer attaches an OpenTelemetry tracer to runs.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// WithStageObserver attaches a metrics sink for stage timings.
func WithStageObserver(observer StageObserver) EngineOption {
	return func(e *Engine) { e.observer = observer }
}

// NewEngine creates an engine over the given stages, keyed by name.
func NewEngine(cfg *config.PipelineConfig, stages []Stage, log *slog.Logger, opts ...EngineOption) *Engine {
	byName := make(map[string]Stage, len(stages))
	for _, stage := range stages {
		byName[stage.Name()] = stage
	}
	e := &Engine{
		cfg:    cfg,
		stages: byName,
		logger: log,
		tracer: noop.NewTracerProvider().Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// modeStages maps each mode to its default stage set. Feature flags extend
// these sets; nothing ever removes the mandatory extract and summarize.
var modeStages = map[Mode][]string{
	ModeQuick:       {StageExtract, StageSummarize},
	ModeStandard:    {StageExtract, StageSummarize, StageCite},
	ModeEducational: {StageExtract, StageSummarize, StageCite},
	ModeResearch:    {StageExtract, StageSummarize, StageResearch, StageFactCheck, StageCite},
}

// StagePlan resolves the stage names a run will execute, in order.
func StagePlan(mode Mode, features Features) []string {
	selected := make(map[string]struct{})
	for _, name := range modeStages[mode] {
		selected[name] = struct{}{}
	}
	if features.WebResearch {
		selected[StageResearch] = struct{}{}
	}
	if features.FactChecking {
		// Fact checking verifies against whatever findings exist; it does
		// not issue web searches the caller never enabled.
		selected[StageFactCheck] = struct{}{}
	}
	if features.Citations {
		selected[StageCite] = struct{}{}
	}

	plan := make([]string, 0, len(selected))
	for _, name := range stageOrder {
		if _, ok := selected[name]; ok {
			plan = append(plan, name)
		}
	}
	return plan
}

// Timeout returns the overall budget for a mode.
func (e *Engine) Timeout(mode Mode) time.Duration {
	if seconds, ok := e.cfg.ModeTimeouts[string(mode)]; ok {
		return time.Duration(seconds) * time.Second
	}
	return 60 * time.Second
}

// Run executes the plan for state's mode and features. On success the
// returned state is the argument, completed. When the budget elapses it
// returns the partial state together with a TimeoutError carrying the same
// state; a mandatory stage failure returns the partial state and the
// stage's error.
func (e *Engine) Run(ctx context.Context, state *State, notify Notifier) (*State, error) {
	plan := StagePlan(state.Mode, state.Features)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout(state.Mode))
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("content.id", state.ContentID),
			attribute.String("pipeline.mode", string(state.Mode)),
		))
	defer span.End()

	// Stages the mode and flags gated off are reported once, up front.
	for _, name := range stageOrder {
		if !contains(plan, name) {
			notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageSkipped})
		}
	}

	for i, name := range plan {
		stage, ok := e.stages[name]
		if !ok {
			return state, NewUpstreamError(name, errors.New("stage not configured"))
		}

		progress := float64(i) / float64(len(plan)) * 100
		notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageRunning, Progress: progress})

		started := time.Now()
		_, stageSpan := e.tracer.Start(ctx, "pipeline.stage."+name)
		err := stage.Run(ctx, state)
		stageSpan.End()
		elapsed := time.Since(started)

		record := StageRecord{
			Stage:      name,
			StartedAt:  started,
			DurationMs: elapsed.Milliseconds(),
		}

		switch {
		case err == nil:
			record.Status = StageCompleted
			state.AppendTrace(record)
			e.observe(name, StageCompleted, elapsed)
			progress = float64(i+1) / float64(len(plan)) * 100
			notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageCompleted, Progress: progress})

		case deadlineExceeded(ctx, err):
			record.Status = StageFailed
			record.Error = "pipeline time budget exceeded"
			state.AppendTrace(record)
			state.TimedOut = true
			state.CompletedAt = time.Now()
			e.observe(name, StageFailed, elapsed)
			notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageFailed, Progress: progress, Error: record.Error})
			e.logger.Warn("pipeline timed out",
				"contentID", state.ContentID, "mode", state.Mode, "stage", name)
			return state, &TimeoutError{Stage: name, Mode: state.Mode, Partial: state}

		case stage.Optional():
			record.Status = StageFailed
			record.Error = err.Error()
			state.AppendTrace(record)
			e.observe(name, StageFailed, elapsed)
			notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageFailed, Progress: progress, Error: err.Error()})
			e.logger.Warn("optional stage failed, continuing",
				"contentID", state.ContentID, "stage", name, "error", err)

		default:
			record.Status = StageFailed
			record.Error = err.Error()
			state.AppendTrace(record)
			e.observe(name, StageFailed, elapsed)
			notify.notify(Event{RunID: state.RunID, Stage: name, Status: StageFailed, Progress: progress, Error: err.Error()})
			e.logger.Error("mandatory stage failed",
				"contentID", state.ContentID, "stage", name, "error", err)
			return state, NewUpstreamError(name, err)
		}
	}

	state.CompletedAt = time.Now()
	return state, nil
}

func (e *Engine) observe(stage string, status StageStatus, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveStage(stage, status, elapsed.Seconds())
	}
}

// deadlineExceeded distinguishes the run budget expiring from an ordinary
// stage failure that happened to race with cancellation.
func deadlineExceeded(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
