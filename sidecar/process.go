package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// maxLineBytes bounds a single output line. Longer lines produce an EventError and end that stream.
	maxLineBytes = 1 << 20

	eventBuffer = 64
)

type Process struct {
	log *zap.SugaredLogger
	ctx context.Context
	cmd *exec.Cmd

	events chan Event
	// result is written before exited is closed.
	result Result
	exited chan struct{}

	wg       sync.WaitGroup
	killOnce sync.Once
}

// Start spawns the process described by req. An error means the process never started.
// The process is killed when ctx is canceled.
func Start(ctx context.Context, log *zap.SugaredLogger, req StartProcRequest) (*Process, error) {
	cmd := exec.Command(req.Command, req.Args...)
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.Dir = req.WD

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	log.Debugw("starting process", "Command", req.Command, "Args", req.Args, "Env", req.Env)
	start := time.Now()
	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("starting %q: %w", req.Command, err)
	}
	log.Debugf("process %d started", cmd.Process.Pid)

	p := &Process{
		log:    log,
		ctx:    ctx,
		cmd:    cmd,
		events: make(chan Event, eventBuffer),
		exited: make(chan struct{}),
	}

	p.wg.Add(2)
	go p.readLines(stdout, EventStdout)
	go p.readLines(stderr, EventStderr)
	go p.waitAndSendResult(start)

	// kill the process if the context is canceled
	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-p.exited:
		}
	}()

	return p, nil
}

// Events returns the event stream. It is closed after the EventTerminated event.
func (p *Process) Events() <-chan Event { return p.events }

// PID returns the OS process ID of the child.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.exited:
		res := p.result
		return &res, nil
	}
}

// Kill terminates the child. It is safe to call more than once and after exit.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		p.log.Debugf("killing process %d", p.cmd.Process.Pid)
		err = p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

func (p *Process) send(ev Event) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
		p.log.Debugf("dropping %s event, context done", ev.Kind)
	}
}

func (p *Process) readLines(r io.Reader, kind EventKind) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		p.send(Event{Kind: kind, Line: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		p.log.Debugf("%s reader got error: %s", kind, err)
		p.send(Event{Kind: EventError, Err: fmt.Errorf("reading %s: %w", kind, err)})
		// drain so the child is not blocked on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

// waitAndSendResult waits for both readers, since exec.Cmd.Wait closes the pipes.
func (p *Process) waitAndSendResult(start time.Time) {
	p.wg.Wait()
	err := p.cmd.Wait()
	timeMS := time.Since(start).Milliseconds()

	exitCode := p.cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.log.Debugf("unexpected wait error: %s", err)
			p.send(Event{Kind: EventError, Err: fmt.Errorf("waiting for process: %w", err)})
		}
	}

	p.log.Debugf("process %d exited with code %d after %dms", p.cmd.Process.Pid, exitCode, timeMS)
	p.result = Result{ExitCode: exitCode, TimeMS: timeMS}
	close(p.exited)

	p.send(Event{Kind: EventTerminated, ExitCode: exitCode})
	close(p.events)
}
