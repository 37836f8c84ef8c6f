package domain

import "time"

// TaskRecord is the persisted state of the last successful execution of a task.
type TaskRecord struct {
	// Key is the rule identity of the task.
	Key string `json:"key"`
	// Signature fingerprints the command, environment, declared nodes and action payload.
	Signature string `json:"signature"`
	// InputStamps maps input nodes to the stamp observed when the task last ran.
	InputStamps map[string]string `json:"input_stamps,omitempty"`
	// OutputHashes maps path outputs to their content hash after the run.
	OutputHashes map[string]string `json:"output_hashes,omitempty"`
	// Generation changes whenever the task produces new results; dependents stamp it.
	Generation string    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
}
