// Package report collects stories, steps and log streams for one suite
// run and renders them as text, JSON, JUnit XML and HTML.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftlab/lodestone/pkg/runner"
	"github.com/craftlab/lodestone/pkg/story"
)

// Suite is the aggregate for one run: every story, its steps, and the
// captured server/client log streams.
type Suite struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Started time.Time       `json:"started"`
	Ended   time.Time       `json:"ended"`
	Passed  bool            `json:"passed"`
	Stories []*StoryReport  `json:"stories"`
	Logs    []story.LogLine `json:"logs,omitempty"`
}

// StoryReport is one story's record inside a suite.
type StoryReport struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Started     time.Time           `json:"started"`
	Ended       time.Time           `json:"ended"`
	Passed      bool                `json:"passed"`
	Steps       []runner.StepRecord `json:"steps"`
	Result      *story.TestResult   `json:"result,omitempty"`
}

// Aggregator accumulates a suite. It is the engine's Recorder and
// LogSource and the backends' LogSink; all three append under one mutex.
type Aggregator struct {
	mu    sync.Mutex
	suite Suite
	open  *StoryReport
	now   func() time.Time
}

// New creates an aggregator for a named suite.
func New(suiteName string) *Aggregator {
	a := &Aggregator{now: time.Now}
	a.suite = Suite{
		ID:      fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8]),
		Name:    suiteName,
		Started: time.Now(),
	}
	return a
}

// BeginStory opens a new story record. Steps append to it until EndStory.
func (a *Aggregator) BeginStory(name, description string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = &StoryReport{Name: name, Description: description, Started: a.now()}
	a.suite.Stories = append(a.suite.Stories, a.open)
}

// AddStep appends one step record to the open story.
func (a *Aggregator) AddStep(rec runner.StepRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open == nil {
		a.open = &StoryReport{Name: "unnamed", Started: a.now()}
		a.suite.Stories = append(a.suite.Stories, a.open)
	}
	a.open.Steps = append(a.open.Steps, rec)
}

// EndStory closes the open story. A story passes iff every step passed
// and no assertion failed.
func (a *Aggregator) EndStory(res *story.TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open == nil {
		return
	}
	a.open.Ended = a.now()
	a.open.Result = res
	passed := res == nil || res.Success
	for _, s := range a.open.Steps {
		if !s.Passed {
			passed = false
		}
	}
	a.open.Passed = passed
	a.open = nil
}

// Append implements backend.LogSink: one log line under a channel, with
// a monotonic timestamp.
func (a *Aggregator) Append(channel, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.now()
	if n := len(a.suite.Logs); n > 0 && !t.After(a.suite.Logs[n-1].Time) {
		t = a.suite.Logs[n-1].Time.Add(time.Nanosecond)
	}
	a.suite.Logs = append(a.suite.Logs, story.LogLine{Channel: channel, Time: t, Text: text})
}

// Lines returns a copy of the captured log stream.
func (a *Aggregator) Lines() []story.LogLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]story.LogLine, len(a.suite.Logs))
	copy(out, a.suite.Logs)
	return out
}

// Text concatenates the text of the named channels (all when empty).
func (a *Aggregator) Text(channels ...string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := map[string]bool{}
	for _, ch := range channels {
		want[ch] = true
	}
	var b strings.Builder
	for _, l := range a.suite.Logs {
		if len(want) == 0 || want[l.Channel] {
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Finish seals the suite and computes the aggregate verdict.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.suite.Ended = a.now()
	a.suite.Passed = true
	for _, s := range a.suite.Stories {
		if !s.Passed {
			a.suite.Passed = false
		}
	}
}

// Suite returns a snapshot of the aggregate.
func (a *Aggregator) Suite() *Suite {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.suite
	snap.Stories = append([]*StoryReport(nil), a.suite.Stories...)
	snap.Logs = append([]story.LogLine(nil), a.suite.Logs...)
	return &snap
}
