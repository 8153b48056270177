package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Process is a running worker with its stdio.
type Process struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	// Stderr may be nil.
	Stderr io.Reader
	// Pid is informational.
	Pid int

	// Wait blocks until the worker exits.
	Wait func() error
	// Kill terminates the worker.
	Kill func() error
}

// Spawner starts a worker from argv.
type Spawner func(ctx context.Context, argv []string) (*Process, error)

// ExecSpawner starts argv as an OS process.
//
// The process is not bound to ctx: the engine decides when it dies
// (stdin close, then Kill after a timeout).
func ExecSpawner(_ context.Context, argv []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("worker command is empty")
	}
	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %q: %w", argv[0], err)
	}

	return &Process{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Pid:    cmd.Process.Pid,
		Wait:   cmd.Wait,
		Kill:   cmd.Process.Kill,
	}, nil
}
