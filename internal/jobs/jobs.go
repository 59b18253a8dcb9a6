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

// Package jobs tracks long-running pipeline executions. Each job runs
// in its own goroutine with a cooperative pause/cancel control point,
// records a bounded event history, and fans events out to any number
// of subscribers so a UI can attach, detach, and reconnect mid-run.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCanceled is returned from control points once a job has been
// asked to cancel. Job functions propagate it up; the manager maps it
// to the canceled status rather than failed.
var ErrCanceled = errors.New("job canceled")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCanceling Status = "canceling"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
)

// terminal reports whether no further transitions are possible.
func (s Status) terminal() bool {
	return s == StatusCanceled || s == StatusFailed || s == StatusSucceeded
}

// maxEventsPerJob bounds the per-job event history replayed to
// reconnecting subscribers.
const maxEventsPerJob = 5000

// subscriberBuffer is the per-subscriber channel capacity. A consumer
// that falls this far behind starts losing events rather than stalling
// the job.
const subscriberBuffer = 256

// Event is one item on a job's event stream.
type Event struct {
	Type    string  `json:"type"` // "state" | "progress" | "log" | "error" | "done"
	Ts      float64 `json:"ts"`
	Status  Status  `json:"status,omitempty"`
	Pct     int     `json:"pct,omitempty"`
	Stage   string  `json:"stage,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Snapshot is the externally visible state of a job.
type Snapshot struct {
	JobID       string  `json:"job_id"`
	Kind        string  `json:"kind"`
	Status      Status  `json:"status"`
	CreatedAt   float64 `json:"created_at"`
	StartedAt   float64 `json:"started_at,omitempty"`
	FinishedAt  float64 `json:"finished_at,omitempty"`
	ProgressPct int     `json:"progress_pct"`
	Stage       string  `json:"stage"`
	Error       string  `json:"error,omitempty"`
}

// Job is one tracked execution. It doubles as the workflow's control
// gate: Wait blocks while paused and fails once canceled.
type Job struct {
	id   string
	kind string

	mu          sync.Mutex
	status      Status
	createdAt   time.Time
	startedAt   time.Time
	finishedAt  time.Time
	progressPct int
	stage       string
	errText     string

	paused   bool
	resumeCh chan struct{} // replaced on pause, closed on resume
	cancelCh chan struct{} // closed once on cancel

	events      []Event
	subscribers map[chan Event]struct{}
}

func newJob(kind string) *Job {
	return &Job{
		id:          uuid.NewString(),
		kind:        kind,
		status:      StatusQueued,
		createdAt:   time.Now(),
		cancelCh:    make(chan struct{}),
		subscribers: make(map[chan Event]struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

func nowTs() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func tsOf(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// Snapshot returns a copy of the job's visible state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:       j.id,
		Kind:        j.kind,
		Status:      j.status,
		CreatedAt:   tsOf(j.createdAt),
		StartedAt:   tsOf(j.startedAt),
		FinishedAt:  tsOf(j.finishedAt),
		ProgressPct: j.progressPct,
		Stage:       j.stage,
		Error:       j.errText,
	}
}

// emit appends to the bounded history and fans out to subscribers.
// Sends are best effort; a slow consumer loses events instead of
// blocking the job.
func (j *Job) emit(ev Event) {
	j.mu.Lock()
	j.events = append(j.events, ev)
	if len(j.events) > maxEventsPerJob {
		j.events = j.events[len(j.events)-maxEventsPerJob:]
	}
	subs := make([]chan Event, 0, len(j.subscribers))
	for ch := range j.subscribers {
		subs = append(subs, ch)
	}
	j.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Progress updates the job's progress and emits a progress event.
func (j *Job) Progress(pct int, stage string) {
	j.mu.Lock()
	j.progressPct = pct
	j.stage = stage
	j.mu.Unlock()
	j.emit(Event{Type: "progress", Ts: nowTs(), Pct: pct, Stage: stage})
}

// Log emits a log-line event on the job's stream.
func (j *Job) Log(msg string) {
	j.emit(Event{Type: "log", Ts: nowTs(), Message: msg})
}

// Subscribe attaches a new consumer. The returned history holds every
// retained event up to this moment so a reconnecting UI can replay;
// events after that arrive on the channel. The cancel function detaches
// the consumer and closes the channel.
func (j *Job) Subscribe() (ch <-chan Event, history []Event, cancel func()) {
	c := make(chan Event, subscriberBuffer)
	j.mu.Lock()
	j.subscribers[c] = struct{}{}
	history = append([]Event(nil), j.events...)
	j.mu.Unlock()

	var once sync.Once
	return c, history, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subscribers, c)
			j.mu.Unlock()
			close(c)
		})
	}
}

// Canceled reports whether cancellation has been requested.
func (j *Job) Canceled() bool {
	select {
	case <-j.cancelCh:
		return true
	default:
		return false
	}
}

// Wait is the cooperative control point. It returns ErrCanceled once
// cancellation was requested, blocks while the job is paused, and
// respects the caller's context. Workflows call it between steps and
// inside long loops.
func (j *Job) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if j.Canceled() {
			return ErrCanceled
		}
		j.mu.Lock()
		paused := j.paused
		resume := j.resumeCh
		j.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.cancelCh:
			return ErrCanceled
		case <-resume:
		}
	}
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
	j.emit(Event{Type: "state", Ts: nowTs(), Status: s})
}

// Manager owns all jobs in the process.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager returns an empty job registry.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job)}
}

// Get looks up a job by id.
func (m *Manager) Get(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}
	return j, nil
}

// List returns snapshots of every known job.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Start registers a job of the given kind and runs fn in a goroutine.
// The context passed to fn is canceled when the job is canceled, so
// blocking operations (model calls, ffmpeg invocations) unwind without
// waiting for the next control point. fn returning ErrCanceled, a
// context error after cancellation, or any error while a cancel is
// pending yields the canceled status; other errors yield failed.
func (m *Manager) Start(kind string, fn func(ctx context.Context, job *Job) error) *Job {
	job := newJob(kind)
	m.mu.Lock()
	m.jobs[job.id] = job
	m.mu.Unlock()

	ctx, cancelCtx := context.WithCancel(context.Background())
	go func() {
		<-job.cancelCh
		cancelCtx()
	}()

	go func() {
		defer cancelCtx()
		job.mu.Lock()
		job.startedAt = time.Now()
		job.mu.Unlock()
		job.setStatus(StatusRunning)

		err := fn(ctx, job)

		job.mu.Lock()
		job.finishedAt = time.Now()
		job.mu.Unlock()

		switch {
		case err == nil:
			job.setStatus(StatusSucceeded)
		case errors.Is(err, ErrCanceled), job.Canceled():
			job.setStatus(StatusCanceled)
		default:
			slog.Error("job failed", "job_id", job.id, "kind", kind, "error", err)
			job.mu.Lock()
			job.errText = err.Error()
			job.mu.Unlock()
			job.emit(Event{Type: "error", Ts: nowTs(), Error: err.Error()})
			job.setStatus(StatusFailed)
		}
		job.emit(Event{Type: "done", Ts: nowTs(), Status: job.Snapshot().Status})
	}()
	return job
}

// Pause requests the job hold at its next control point. Only a
// running or already paused job is affected.
func (m *Manager) Pause(jobID string) (Snapshot, error) {
	j, err := m.Get(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	j.mu.Lock()
	if j.status != StatusRunning && j.status != StatusPaused {
		j.mu.Unlock()
		return j.Snapshot(), nil
	}
	if !j.paused {
		j.paused = true
		j.resumeCh = make(chan struct{})
	}
	j.status = StatusPaused
	j.mu.Unlock()
	j.emit(Event{Type: "state", Ts: nowTs(), Status: StatusPaused})
	return j.Snapshot(), nil
}

// Resume releases a paused job.
func (m *Manager) Resume(jobID string) (Snapshot, error) {
	j, err := m.Get(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	j.mu.Lock()
	if j.status != StatusPaused && j.status != StatusRunning {
		j.mu.Unlock()
		return j.Snapshot(), nil
	}
	if j.paused {
		j.paused = false
		close(j.resumeCh)
		j.resumeCh = nil
	}
	j.status = StatusRunning
	j.mu.Unlock()
	j.emit(Event{Type: "state", Ts: nowTs(), Status: StatusRunning})
	return j.Snapshot(), nil
}

// Cancel requests cancellation. A paused job is released so it can
// observe the cancel; terminal jobs are left untouched.
func (m *Manager) Cancel(jobID string) (Snapshot, error) {
	j, err := m.Get(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	j.mu.Lock()
	if j.status.terminal() {
		j.mu.Unlock()
		return j.Snapshot(), nil
	}
	j.status = StatusCanceling
	if j.paused {
		j.paused = false
		close(j.resumeCh)
		j.resumeCh = nil
	}
	select {
	case <-j.cancelCh:
	default:
		close(j.cancelCh)
	}
	j.mu.Unlock()
	j.emit(Event{Type: "state", Ts: nowTs(), Status: StatusCanceling})
	return j.Snapshot(), nil
}
