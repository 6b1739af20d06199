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
	"testing"
	"time"
)

func waitExit(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
		return 0
	}
}

func blockUntilDone(ctx context.Context) { <-ctx.Done() }

func TestGracefulShutdownExitsZero(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	s.Add("a", RunFunc(blockUntilDone), 0)
	s.Add("b", RunFunc(blockUntilDone), 0)

	exitCh := s.Start(ctx, cancel)
	cancel()

	if code := waitExit(t, exitCh); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if s.Failed() != "" {
		t.Errorf("Failed() = %q, want empty", s.Failed())
	}
}

func TestPanicIsFatalToAllTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New()
	s.Add("steady", RunFunc(blockUntilDone), 0)
	s.Add("broken", RunFunc(func(ctx context.Context) { panic("boom") }), 0)

	if code := waitExit(t, s.Start(ctx, cancel)); code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if s.Failed() != "broken" {
		t.Errorf("Failed() = %q, want %q", s.Failed(), "broken")
	}
	if ctx.Err() == nil {
		t.Error("context not cancelled after task panic")
	}
}

func TestEarlyReturnIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New()
	s.Add("steady", RunFunc(blockUntilDone), 0)
	s.Add("quitter", RunFunc(func(ctx context.Context) {}), 0)

	if code := waitExit(t, s.Start(ctx, cancel)); code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if s.Failed() != "quitter" {
		t.Errorf("Failed() = %q, want %q", s.Failed(), "quitter")
	}
}

func TestStalledReportsOverrunningStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inStep := make(chan struct{})
	release := make(chan struct{})

	s := New()
	s.Add("idle", RunFunc(blockUntilDone), 10*time.Millisecond)
	s.Add("stuck", RunFunc(func(ctx context.Context) {
		done := Step(ctx)
		close(inStep)
		<-release
		done()
		<-ctx.Done()
	}), 10*time.Millisecond)
	exitCh := s.Start(ctx, cancel)

	<-inStep
	if got := s.Stalled(time.Now()); len(got) != 0 {
		t.Errorf("Stalled() immediately = %v, want none", got)
	}

	got := s.Stalled(time.Now().Add(50 * time.Millisecond))
	if len(got) != 1 || got[0] != "stuck" {
		t.Errorf("Stalled() = %v, want [stuck]", got)
	}

	close(release)
	time.Sleep(5 * time.Millisecond)
	if got := s.Stalled(time.Now().Add(time.Hour)); len(got) != 0 {
		t.Errorf("Stalled() after step end = %v, want none", got)
	}

	cancel()
	waitExit(t, exitCh)
}

func TestStepOutsideSchedulerIsNoop(t *testing.T) {
	done := Step(context.Background())
	done()
}

func TestAddAfterStartPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	s.Add("a", RunFunc(blockUntilDone), 0)
	exitCh := s.Start(ctx, cancel)
	defer func() {
		cancel()
		waitExit(t, exitCh)
	}()

	defer func() {
		if recover() == nil {
			t.Error("Add after Start did not panic")
		}
	}()
	s.Add("late", RunFunc(blockUntilDone), 0)
}
