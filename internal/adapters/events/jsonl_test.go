package events_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/events"
	"go.trai.ch/bake/internal/core/domain"
)

func TestJSONLines_Emit(t *testing.T) {
	var buf bytes.Buffer
	sink := events.NewJSONLines(&buf)
	task := &domain.Task{RuleInfo: []string{"CompileC", "main.o"}}

	sink.Emit(domain.BuildEvent{Kind: domain.EventBuildStarted})
	sink.Emit(domain.BuildEvent{Kind: domain.EventTaskHadEvent, Task: task, TaskEvent: domain.TaskHadOutput, Output: []byte("hi\n")})
	sink.Emit(domain.BuildEvent{Kind: domain.EventTaskHadEvent, Task: task, TaskEvent: domain.TaskExit, ExitStatus: domain.ExitSucceeded})
	sink.Emit(domain.BuildEvent{Kind: domain.EventTotalProgressChanged, TargetName: "App", StartedCount: 1, MaxCount: 3})
	sink.Emit(domain.BuildEvent{Kind: domain.EventBuildCompleted, Outcome: domain.OutcomeFailed})
	require.NoError(t, sink.Err())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 5)
	assert.JSONEq(t, `{"kind":"buildStarted"}`, string(lines[0]))
	assert.JSONEq(t, `{"kind":"taskHadEvent","task":"CompileC main.o","event":"hadOutput","output":"hi\n"}`, string(lines[1]))
	assert.JSONEq(t, `{"kind":"taskHadEvent","task":"CompileC main.o","event":"exit","exitStatus":"succeeded","exitCode":0}`, string(lines[2]))
	assert.JSONEq(t, `{"kind":"totalProgressChanged","target":"App","started":1,"max":3}`, string(lines[3]))
	assert.JSONEq(t, `{"kind":"buildCompleted","outcome":"failed"}`, string(lines[4]))
}

func TestNewRecord_PathMap(t *testing.T) {
	rec := events.NewRecord(domain.BuildEvent{
		Kind:                  domain.EventBuildReportedPathMap,
		CopiedPathMap:         map[string]string{"/dst": "/src"},
		GeneratedFilesPathMap: map[string]string{},
	})
	assert.Equal(t, "buildReportedPathMap", rec.Kind)
	assert.Equal(t, map[string]string{"/dst": "/src"}, rec.CopiedPathMap)
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestJSONLines_StopsAfterError(t *testing.T) {
	w := &failingWriter{}
	sink := events.NewJSONLines(w)

	sink.Emit(domain.BuildEvent{Kind: domain.EventBuildStarted})
	sink.Emit(domain.BuildEvent{Kind: domain.EventBuildCancelled})

	require.Error(t, sink.Err())
	assert.Equal(t, 1, w.writes)
}
