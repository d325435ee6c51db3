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

// Package orchestrator sequences the upgrade stages and decides what a
// stage failure means for the rest of the run.
package orchestrator

import "time"

// Class is how a stage's failure is handled.
//
//   - Advisory: note it and carry on.
//   - Gated: ask the operator whether to carry on.
//   - Critical: stop the run.
type Class int

const (
	Advisory Class = iota
	Gated
	Critical
)

func (c Class) String() string {
	switch c {
	case Advisory:
		return "advisory"
	case Gated:
		return "gated"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Warned    Outcome = "warned"
	Failed    Outcome = "failed"
	Aborted   Outcome = "aborted"
)

// StageResult records how one stage ended.
type StageResult struct {
	Stage    string
	Outcome  Outcome
	Reason   string
	Warnings []string
	Duration time.Duration
}

// RunResult aggregates a whole run. Aborted means the operator
// declined the confirmation before anything was mutated; it is not a
// failure.
type RunResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Stages   []StageResult
	Outcome  Outcome
}

func (r *RunResult) record(result StageResult) {
	r.Stages = append(r.Stages, result)
	switch result.Outcome {
	case Failed:
		r.Outcome = Failed
	case Aborted:
		if r.Outcome != Failed {
			r.Outcome = Aborted
		}
	case Warned:
		if r.Outcome == Succeeded {
			r.Outcome = Warned
		}
	}
}
