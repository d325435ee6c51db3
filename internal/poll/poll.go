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

// Package poll provides bounded condition waiting. Every wait in the
// pipeline goes through Until so that no stage can hang forever.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrTimeout marks a condition that did not hold before the deadline.
// Callers decide whether that aborts the run or only degrades it.
var ErrTimeout = errors.New("condition not met before deadline")

// Spec bounds a single wait.
type Spec struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// DefaultSpec matches the cadence used for cluster rollouts.
var DefaultSpec = Spec{Interval: 10 * time.Second, MaxWait: 10 * time.Minute}

// Until polls condition every Interval until it returns true, errors,
// or MaxWait elapses. The condition is tried immediately on entry. A
// deadline expiry is reported as ErrTimeout; condition errors pass
// through unchanged.
func Until(ctx context.Context, spec Spec,
	condition func(ctx context.Context) (bool, error)) error {

	if spec.Interval <= 0 {
		spec.Interval = DefaultSpec.Interval
	}
	if spec.MaxWait <= 0 {
		spec.MaxWait = DefaultSpec.MaxWait
	}
	err := wait.PollUntilContextTimeout(ctx, spec.Interval, spec.MaxWait, true, condition)
	if wait.Interrupted(err) {
		return fmt.Errorf("%w after %s", ErrTimeout, spec.MaxWait)
	}
	return err
}
