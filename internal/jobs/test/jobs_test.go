// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jobs_test contains unit tests for the job lifecycle: state
// transitions, pause/cancel control points, and event fan-out.
package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/muziris/go-gist-video/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitStatus polls until the job reaches a target status or the test
// deadline hits.
func waitStatus(t *testing.T, j *jobs.Job, want jobs.Status) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := j.Snapshot()
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := j.Snapshot()
	t.Fatalf("job never reached %s; last status %s (error %q)", want, snap.Status, snap.Error)
	return snap
}

// TestJobSucceeds verifies the queued -> running -> succeeded path and
// the progress snapshot.
func TestJobSucceeds(t *testing.T) {
	m := jobs.NewManager()
	job := m.Start("index", func(ctx context.Context, j *jobs.Job) error {
		j.Progress(50, "halfway")
		return nil
	})
	snap := waitStatus(t, job, jobs.StatusSucceeded)
	assert.Equal(t, "index", snap.Kind)
	assert.Equal(t, 50, snap.ProgressPct)
	assert.Equal(t, "halfway", snap.Stage)
	assert.NotZero(t, snap.FinishedAt)
}

// TestJobFails verifies an error lands in the snapshot and the failed
// status.
func TestJobFails(t *testing.T) {
	m := jobs.NewManager()
	job := m.Start("render", func(ctx context.Context, j *jobs.Job) error {
		return errors.New("voice track longer than script")
	})
	snap := waitStatus(t, job, jobs.StatusFailed)
	assert.Contains(t, snap.Error, "voice track")
}

// TestJobCancel verifies a cancel request cancels the job context and
// maps the resulting error to the canceled status, not failed.
func TestJobCancel(t *testing.T) {
	m := jobs.NewManager()
	started := make(chan struct{})
	job := m.Start("index", func(ctx context.Context, j *jobs.Job) error {
		close(started)
		<-ctx.Done()
		return j.Wait(ctx)
	})
	<-started
	snap, err := m.Cancel(job.ID())
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCanceling, snap.Status)
	waitStatus(t, job, jobs.StatusCanceled)
}

// TestJobPauseResume verifies Wait blocks while paused and releases on
// resume.
func TestJobPauseResume(t *testing.T) {
	m := jobs.NewManager()
	entered := make(chan struct{})
	release := make(chan struct{})
	passed := make(chan struct{})
	job := m.Start("render", func(ctx context.Context, j *jobs.Job) error {
		close(entered)
		<-release
		if err := j.Wait(ctx); err != nil {
			return err
		}
		close(passed)
		return nil
	})
	<-entered
	_, err := m.Pause(job.ID())
	require.NoError(t, err)
	close(release)

	select {
	case <-passed:
		t.Fatal("Wait did not block while paused")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.Resume(job.ID())
	require.NoError(t, err)
	select {
	case <-passed:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not release after resume")
	}
	waitStatus(t, job, jobs.StatusSucceeded)
}

// TestCancelWhilePaused verifies a paused job observes cancellation.
func TestCancelWhilePaused(t *testing.T) {
	m := jobs.NewManager()
	entered := make(chan struct{})
	job := m.Start("index", func(ctx context.Context, j *jobs.Job) error {
		close(entered)
		for {
			if err := j.Wait(ctx); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	})
	<-entered
	_, err := m.Pause(job.ID())
	require.NoError(t, err)
	_, err = m.Cancel(job.ID())
	require.NoError(t, err)
	waitStatus(t, job, jobs.StatusCanceled)
}

// TestSubscribeReplaysHistory verifies a late subscriber sees earlier
// events followed by live ones.
func TestSubscribeReplaysHistory(t *testing.T) {
	m := jobs.NewManager()
	logged := make(chan struct{})
	release := make(chan struct{})
	job := m.Start("index", func(ctx context.Context, j *jobs.Job) error {
		j.Log("first")
		close(logged)
		<-release
		j.Log("second")
		return nil
	})
	<-logged

	ch, history, cancel := job.Subscribe()
	defer cancel()
	var sawFirst bool
	for _, ev := range history {
		if ev.Type == "log" && ev.Message == "first" {
			sawFirst = true
		}
	}
	assert.True(t, sawFirst, "history should contain the early log event")

	close(release)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == "log" && ev.Message == "second" {
				return
			}
		case <-deadline:
			t.Fatal("never received the live log event")
		}
	}
}

// TestGetUnknown verifies lookups of unknown ids fail.
func TestGetUnknown(t *testing.T) {
	m := jobs.NewManager()
	_, err := m.Get("nope")
	require.Error(t, err)
	_, err = m.Pause("nope")
	require.Error(t, err)
}
