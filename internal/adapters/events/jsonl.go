// Package events serializes the build event stream for machine consumers.
package events

import (
	"encoding/json"
	"io"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

var _ ports.BuildEventSink = (*JSONLines)(nil)

// Record is the wire form of one build event. Empty fields are omitted.
type Record struct {
	Kind string `json:"kind"`

	Task       string `json:"task,omitempty"`
	Target     string `json:"target,omitempty"`
	TaskEvent  string `json:"event,omitempty"`
	Output     string `json:"output,omitempty"`
	ExitStatus string `json:"exitStatus,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`

	Started int `json:"started,omitempty"`
	Max     int `json:"max,omitempty"`

	CopiedPathMap         map[string]string `json:"copiedPathMap,omitempty"`
	GeneratedFilesPathMap map[string]string `json:"generatedFilesPathMap,omitempty"`

	Outcome string `json:"outcome,omitempty"`
}

// NewRecord converts ev into its wire form.
func NewRecord(ev domain.BuildEvent) Record {
	rec := Record{Kind: ev.Kind.String()}
	switch ev.Kind {
	case domain.EventTaskHadEvent:
		if ev.Task != nil {
			rec.Task = ev.Task.Key()
			rec.Target = ev.Task.TargetName()
		}
		rec.TaskEvent = ev.TaskEvent.String()
		switch ev.TaskEvent {
		case domain.TaskHadOutput:
			rec.Output = string(ev.Output)
		case domain.TaskExit:
			code := ev.ExitCode
			rec.ExitStatus = ev.ExitStatus.String()
			rec.ExitCode = &code
		}
	case domain.EventTotalProgressChanged:
		rec.Target = ev.TargetName
		rec.Started = ev.StartedCount
		rec.Max = ev.MaxCount
	case domain.EventBuildReportedPathMap:
		rec.CopiedPathMap = ev.CopiedPathMap
		rec.GeneratedFilesPathMap = ev.GeneratedFilesPathMap
	case domain.EventBuildCompleted:
		rec.Outcome = ev.Outcome.String()
	}
	return rec
}

// JSONLines writes one JSON object per event.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewJSONLines creates a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// Emit writes ev. After the first write error further events are dropped.
func (s *JSONLines) Emit(ev domain.BuildEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(NewRecord(ev))
}

// Err returns the first write error.
func (s *JSONLines) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
