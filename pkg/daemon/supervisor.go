package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnw42/remapd/pkg/journal"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// workerEnv marks a process as the supervised worker. The supervisor
// re-executes its own binary with it set instead of forking, so the
// worker starts from a clean slate with default signal dispositions.
const workerEnv = "REMAPD_WORKER"

// InWorker reports whether this process was spawned as the worker.
func InWorker() bool {
	return os.Getenv(workerEnv) == "1"
}

type supervisorState int

const (
	stateStarting supervisorState = iota
	stateAwaitingChild
	stateShuttingDown
)

// Supervisor keeps the worker process alive: it restarts crashed
// workers with exponential backoff, forwards termination signals, and
// bounces the worker when the rules file changes. All state transitions
// happen on the Run goroutine; signals arrive as channel values.
type Supervisor struct {
	rulesPath string
	journal   journal.Recorder
	log       *zap.SugaredLogger

	state supervisorState
}

func NewSupervisor(rulesPath string, rec journal.Recorder, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		rulesPath: rulesPath,
		journal:   rec,
		log:       log,
	}
}

// Run spawns and supervises workers until a termination signal
// arrives. It only returns early if a worker cannot be spawned at all.
func (s *Supervisor) Run() error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signals)

	reload, closeWatch, err := watchRules(s.rulesPath, s.log)
	if err != nil {
		s.log.Warnw("rules watching disabled", "error", err)
	} else {
		defer closeWatch()
	}

	delays := newBackoff()
	for {
		child, err := s.spawn()
		if err != nil {
			return fmt.Errorf("spawn worker: %w", err)
		}
		s.log.Infow("worker started", "pid", child.Process.Pid)
		s.record(journal.KindWorkerStart, fmt.Sprintf("pid %d", child.Process.Pid))
		started := time.Now()
		s.state = stateAwaitingChild

		exited := make(chan error, 1)
		go func() { exited <- child.Wait() }()

	await:
		for {
			select {
			case sig := <-signals:
				s.handleSignal(sig, child.Process)
			case <-reload:
				s.log.Info("rules file changed, restarting worker")
				s.forward(child.Process, syscall.SIGTERM)
			case err := <-exited:
				s.record(journal.KindWorkerExit, exitDetail(err))
				break await
			}
		}

		lifetime := time.Since(started)
		if s.state == stateShuttingDown {
			s.log.Info("shutting down")
			return nil
		}
		s.state = stateStarting

		delay := delays.Next(lifetime)
		s.log.Infow("restarting worker", "lifetime", lifetime.Round(time.Millisecond), "delay", delay)
		s.record(journal.KindRestartDelay, delay.String())

		timer := time.After(delay)
	sleep:
		for {
			select {
			case <-timer:
				break sleep
			case sig := <-signals:
				s.handleSignal(sig, nil)
				if s.state == stateShuttingDown {
					s.log.Info("shutting down")
					return nil
				}
			}
		}
	}
}

// handleSignal forwards the signal to the awaited child and records a
// shutdown request. SIGQUIT is forwarded without stopping the
// supervisor; anything else ends the restart loop once the child dies.
func (s *Supervisor) handleSignal(sig os.Signal, child *os.Process) {
	if s.state == stateAwaitingChild && child != nil {
		s.forward(child, sig)
	}
	if sig != syscall.SIGQUIT {
		s.state = stateShuttingDown
	}
}

// spawn re-executes this binary as a worker, in its own session so
// terminal signals reach it only via forwarding.
func (s *Supervisor) spawn() (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), workerEnv+"=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return cmd, nil
}

func (s *Supervisor) forward(p *os.Process, sig os.Signal) {
	usig, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	s.log.Debugw("forwarding signal", "signal", usig.String(), "pid", p.Pid)
	if err := unix.Kill(p.Pid, usig); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Warnw("forward signal", "error", err)
	}
}

func (s *Supervisor) record(kind journal.Kind, detail string) {
	if s.journal == nil {
		return
	}
	err := s.journal.Append(journal.Entry{Time: time.Now(), Kind: kind, Detail: detail})
	if err != nil {
		s.log.Warnw("journal append", "error", err)
	}
}

func exitDetail(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		if status, ok := exit.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return "signal " + status.Signal().String()
		}
		return exit.String()
	}
	return err.Error()
}
