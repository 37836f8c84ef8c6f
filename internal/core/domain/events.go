package domain

// BuildEventKind enumerates the events of a build operation.
type BuildEventKind uint8

const (
	EventBuildStarted BuildEventKind = iota
	EventBuildReportedPathMap
	EventTaskHadEvent
	EventTotalProgressChanged
	EventBuildCancelled
	EventBuildCompleted
)

func (k BuildEventKind) String() string {
	switch k {
	case EventBuildStarted:
		return "buildStarted"
	case EventBuildReportedPathMap:
		return "buildReportedPathMap"
	case EventTaskHadEvent:
		return "taskHadEvent"
	case EventTotalProgressChanged:
		return "totalProgressChanged"
	case EventBuildCancelled:
		return "buildCancelled"
	default:
		return "buildCompleted"
	}
}

// TaskEventKind enumerates the lifecycle events of one task.
type TaskEventKind uint8

const (
	TaskStarted TaskEventKind = iota
	TaskHadOutput
	TaskExit
	TaskCompleted
)

func (k TaskEventKind) String() string {
	switch k {
	case TaskStarted:
		return "started"
	case TaskHadOutput:
		return "hadOutput"
	case TaskExit:
		return "exit"
	default:
		return "completed"
	}
}

// ExitStatus is how a task ended.
type ExitStatus uint8

const (
	ExitSucceeded ExitStatus = iota
	ExitFailed
	ExitCancelled
)

func (s ExitStatus) String() string {
	switch s {
	case ExitFailed:
		return "failed"
	case ExitCancelled:
		return "cancelled"
	default:
		return "succeeded"
	}
}

// BuildOutcome is the terminal state of a build.
type BuildOutcome uint8

const (
	OutcomeSucceeded BuildOutcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o BuildOutcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "succeeded"
	}
}

// BuildEvent is one element of the event stream of a build operation.
type BuildEvent struct {
	Kind BuildEventKind

	// Task fields are set for EventTaskHadEvent.
	Task       *Task
	TaskEvent  TaskEventKind
	Output     []byte
	ExitStatus ExitStatus
	ExitCode   int

	// Progress fields are set for EventTotalProgressChanged.
	TargetName   string
	StartedCount int
	MaxCount     int

	// Path maps are set for EventBuildReportedPathMap.
	CopiedPathMap         map[string]string
	GeneratedFilesPathMap map[string]string

	// Outcome is set for EventBuildCompleted.
	Outcome BuildOutcome
}

// BuildResult summarizes a finished build operation.
type BuildResult struct {
	Outcome BuildOutcome
	// Executed counts tasks that ran, excluding gates and up-to-date tasks.
	Executed int
	// UpToDate counts non-gate tasks skipped because their signature matched.
	UpToDate int
	Errors   []error
}
