package runner

import "errors"

var (
	// ErrSpawn means the process could not be started.
	ErrSpawn = errors.New("failed to start process")

	// ErrPipe means the output pipes could not be created.
	ErrPipe = errors.New("failed to create output pipes")

	// ErrPumpTimeout means output readers were still busy when the drain
	// timeout expired, usually because a background child kept a pipe open.
	ErrPumpTimeout = errors.New("output readers did not finish in time")

	// ErrEmptyPrefix is returned by Enqueue for a blank prefix.
	ErrEmptyPrefix = errors.New("command prefix is empty")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("runner already started")
)
