/*
Copyright 2024 Blnk Finance Authors.

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

package inspectsync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/model"
)

// CycleRunner runs a pipeline cycle on a fixed interval until stopped.
type CycleRunner struct {
	pipeline *Pipeline
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewCycleRunner creates a runner for pipeline. An interval of zero or less
// falls back to ten minutes.
func NewCycleRunner(pipeline *Pipeline, interval time.Duration) *CycleRunner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CycleRunner{
		pipeline: pipeline,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (r *CycleRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()

	logrus.WithField("interval", r.interval.String()).Info("Cycle runner started")
}

// Stop signals the runner and waits for a cycle in progress to finish.
func (r *CycleRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	logrus.Info("Cycle runner stopped")
}

func (r *CycleRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger runs a cycle now. It waits for a cycle already in progress.
func (r *CycleRunner) Trigger(ctx context.Context) (model.CycleResult, error) {
	return r.pipeline.RunCycle(ctx)
}

// run executes a cycle right away and then one per tick. Both happen inside
// the goroutine Stop waits for.
func (r *CycleRunner) run(ctx context.Context) {
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Cycle runner context cancelled")
			return
		case <-r.stopCh:
			logrus.Info("Cycle runner stop signal received")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *CycleRunner) runCycle(ctx context.Context) {
	if _, err := r.pipeline.RunCycle(ctx); err != nil {
		logrus.WithError(err).Error("Cycle failed")
	}
}
