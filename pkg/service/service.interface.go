// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"gbebox/pkg/logger"
)

// Runnable is the common interface for all services.
type Runnable interface {
	Run(ctx context.Context)
}

// RunFunc adapts a plain function to Runnable.
type RunFunc func(ctx context.Context)

func (f RunFunc) Run(ctx context.Context) { f(ctx) }

// ExitFailure is the exit code reported when any task fails.
const ExitFailure = -1

type task struct {
	name string
	r    Runnable
	hb   *heartbeat
}

// Scheduler runs a fixed set of long-lived tasks for the lifetime of the
// process. A task that panics, or returns while the context is still live,
// takes every other task down with it.
type Scheduler struct {
	log   *logger.Logger
	tasks []*task

	mu       sync.Mutex
	exitCode int
	failed   string
	started  bool
}

func New() *Scheduler {
	return &Scheduler{log: logger.New("Scheduler")}
}

// Add registers r under name. budget bounds how long a single step of r
// (see Step) may run before the task counts as stalled; zero disables the
// check for that task. Add must be called before Start.
func (s *Scheduler) Add(name string, r Runnable, budget time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("service: Add after Start")
	}
	s.tasks = append(s.tasks, &task{name: name, r: r, hb: &heartbeat{budget: budget}})
}

// Start launches every task and returns a channel that receives the exit
// code once all of them have stopped.
func (s *Scheduler) Start(ctx context.Context, ctxCancel context.CancelFunc) <-chan int {
	s.mu.Lock()
	s.started = true
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	wg := &sync.WaitGroup{}
	exitCh := make(chan int, 1)

	for _, t := range tasks {
		taskCtx := withHeartbeat(ctx, t.hb)
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					s.fail(t.name, fmt.Sprintf("panic: %v\n%s", r, debug.Stack()))
					ctxCancel()
				}
			}()
			s.log.Info("start %s", t.name)
			t.r.Run(taskCtx)
			if ctx.Err() == nil {
				s.fail(t.name, "returned before shutdown")
				ctxCancel()
				return
			}
			s.log.Info("stopped %s", t.name)
		})
	}

	go func() {
		// wait for all tasks to stop
		wg.Wait()
		s.mu.Lock()
		code := s.exitCode
		s.mu.Unlock()
		exitCh <- code
	}()

	return exitCh
}

func (s *Scheduler) fail(name, reason string) {
	s.log.Error("task %s failed: %s", name, reason)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitCode = ExitFailure
	if s.failed == "" {
		s.failed = name
	}
}

// Failed returns the name of the first task that failed, if any.
func (s *Scheduler) Failed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Stalled returns the names of tasks whose current step has been running
// longer than their budget at time now.
func (s *Scheduler) Stalled(now time.Time) []string {
	s.mu.Lock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	var stalled []string
	for _, t := range tasks {
		if t.hb.overdue(now) {
			stalled = append(stalled, t.name)
		}
	}
	sort.Strings(stalled)
	return stalled
}
