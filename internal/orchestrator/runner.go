/*
Copyright 2025 Largo Chat.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/largo-chat/cluster-ops/internal/events"
)

// ErrDeclined is returned by a stage when the operator turns down the
// confirmation prompt. The runner treats it as a clean abort.
var ErrDeclined = errors.New("operator declined")

// Stage is one step of a run. Run returns operator-facing warnings for
// degradations that do not fail the stage.
type Stage struct {
	Name  string
	Class Class
	Run   func(ctx context.Context) ([]string, error)
}

type Runner struct {
	Prompter Prompter
	Notifier events.Notifier
}

// Run executes the stages in order. A Critical failure or a declined
// gate stops the run; Advisory failures degrade it; Gated failures put
// the decision to the operator. The returned error is non-nil only
// when the run failed, never for a clean abort.
func (r *Runner) Run(ctx context.Context, stages []Stage) (*RunResult, error) {
	logger := log.FromContext(ctx)

	result := &RunResult{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Outcome: Succeeded,
	}
	defer func() { result.Finished = time.Now() }()

	var failure error
	for _, stage := range stages {
		started := time.Now()
		warnings, err := stage.Run(ctx)
		stageResult := StageResult{
			Stage:    stage.Name,
			Warnings: warnings,
			Duration: time.Since(started),
		}

		switch {
		case errors.Is(err, ErrDeclined):
			stageResult.Outcome = Aborted
			stageResult.Reason = "declined by operator"
			logger.Info("Run aborted before any changes", "stage", stage.Name)

		case err != nil:
			stageResult.Reason = err.Error()
			switch stage.Class {
			case Advisory:
				stageResult.Outcome = Warned
				logger.Info("Stage degraded, continuing",
					"stage", stage.Name, "reason", err.Error())
			case Gated:
				proceed, promptErr := r.Prompter.Confirm(fmt.Sprintf(
					"%s: %s. Continue anyway?", stage.Name, err.Error()))
				if promptErr != nil {
					proceed = false
				}
				if proceed {
					stageResult.Outcome = Warned
					logger.Info("Stage failed, operator chose to continue",
						"stage", stage.Name, "reason", err.Error())
				} else {
					stageResult.Outcome = Failed
					failure = fmt.Errorf("stage %s: %w", stage.Name, err)
					logger.Error(err, "Stage failed", "stage", stage.Name)
				}
			case Critical:
				stageResult.Outcome = Failed
				failure = fmt.Errorf("stage %s: %w", stage.Name, err)
				logger.Error(err, "Stage failed, stopping run", "stage", stage.Name)
			}

		case len(warnings) > 0:
			stageResult.Outcome = Warned
			logger.Info("Stage completed with warnings",
				"stage", stage.Name, "warnings", warnings)

		default:
			stageResult.Outcome = Succeeded
			logger.Info("Stage completed", "stage", stage.Name,
				"duration", stageResult.Duration.Round(time.Millisecond).String())
		}

		result.record(stageResult)
		r.notify(stageResult, result.RunID)
		if stageResult.Outcome == Failed || stageResult.Outcome == Aborted {
			break
		}
	}
	return result, failure
}

func (r *Runner) notify(stageResult StageResult, runID string) {
	if r.Notifier == nil {
		return
	}
	r.Notifier.Notify(events.StageEvent{
		RunID:   runID,
		Stage:   stageResult.Stage,
		Outcome: string(stageResult.Outcome),
		Reason:  stageResult.Reason,
		Time:    time.Now(),
	})
}
