// Package main runs the full stack in one container: state authority,
// logic engine, and backend aggregator, each gated on its upstream
// being dialable before it starts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/onekgame/onek/internal/transport"
)

// defaultStateAddr is the authority address the other services dial.
const defaultStateAddr = "127.0.0.1:7701"

// defaultLogicAddr is the intent port the backend dials.
const defaultLogicAddr = "127.0.0.1:7702"

// defaultBackendAddr is the outward session address.
const defaultBackendAddr = "0.0.0.0:7703"

// readyTimeout bounds how long a downstream waits for its upstream.
const readyTimeout = 30 * time.Second

// shutdownTimeout is the grace period before forcing child exit.
const shutdownTimeout = 10 * time.Second

// childProcess describes a managed child command.
type childProcess struct {
	name string
	cmd  *exec.Cmd
}

// processExit reports a child process exit result.
type processExit struct {
	name string
	err  error
}

// main starts state, logic, and backend in dependency order, then
// supervises them. Any child exit takes the stack down.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	binDir := getenvDefault("ONEK_BIN_DIR", "/app")
	stateAddr := getenvDefault("ONEK_STATE_ADDR", defaultStateAddr)
	logicAddr := getenvDefault("ONEK_LOGIC_ADDR", defaultLogicAddr)
	backendAddr := getenvDefault("ONEK_BACKEND_ADDR", defaultBackendAddr)

	var children []*childProcess
	start := func(name string, args ...string) *childProcess {
		child, err := startChild(name, exec.Command(filepath.Join(binDir, name), args...))
		if err != nil {
			terminateChildren(children)
			log.Fatalf("failed to start %s: %v", name, err)
		}
		children = append(children, child)
		return child
	}
	awaitReady := func(name, addr string) {
		readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		defer cancel()
		if err := awaitDialable(readyCtx, addr); err != nil {
			terminateChildren(children)
			log.Fatalf("%s not ready on %s: %v", name, addr, err)
		}
	}

	start("state", "-addr="+stateAddr)
	awaitReady("state", stateAddr)
	start("logic", "-addr="+logicAddr, "-authority="+stateAddr)
	awaitReady("logic", logicAddr)
	start("backend", "-addr="+backendAddr, "-authority="+stateAddr, "-logic="+logicAddr)

	exitCh := make(chan processExit, len(children))
	for _, child := range children {
		go waitChild(child, exitCh)
	}

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
		terminateChildren(children)
		waitForChildren(exitCh, len(children), shutdownTimeout, children)
		return
	case exit := <-exitCh:
		log.Printf("%s exited: %v", exit.name, exit.err)
		terminateChildren(children)
		waitForChildren(exitCh, len(children)-1, shutdownTimeout, children)
		os.Exit(exitCode(exit.err))
	}
}

// awaitDialable blocks until addr accepts a connection.
func awaitDialable(ctx context.Context, addr string) error {
	conn, err := transport.DialReady(ctx, addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// startChild starts a child process with inherited stdio streams.
func startChild(name string, cmd *exec.Cmd) (*childProcess, error) {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	return &childProcess{name: name, cmd: cmd}, nil
}

// waitChild waits for a child process and reports its exit.
func waitChild(child *childProcess, exitCh chan<- processExit) {
	err := child.cmd.Wait()
	exitCh <- processExit{name: child.name, err: err}
}

// terminateChildren sends SIGTERM to all child processes.
func terminateChildren(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		_ = child.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// waitForChildren waits for the remaining exits or forces shutdown.
func waitForChildren(exitCh <-chan processExit, remaining int, timeout time.Duration, children []*childProcess) {
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for remaining > 0 {
		select {
		case <-exitCh:
			remaining--
		case <-timer.C:
			forceKill(children)
			return
		}
	}
}

// forceKill sends SIGKILL to any child still running.
func forceKill(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		if child.cmd.ProcessState != nil {
			continue
		}
		_ = child.cmd.Process.Kill()
	}
}

// exitCode derives a process exit code from a wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}

// getenvDefault returns the env value or a fallback when unset.
func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
