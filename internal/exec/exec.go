// Package exec launches a target command with MOSALLOC_SOCK pointed at a
// freshly started allocator daemon, so an instrumented morecore/mmap hook
// in the child inherits a path to the rpcshim server.
package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosalloc-go/mosalloc/internal/output"
)

// RunConfig holds everything needed to launch the target command.
type RunConfig struct {
	Command    []string
	SocketPath string
	Env        []string // extra environment entries, appended to os.Environ()
	Timeout    time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

// ExecCommand wraps exec.Command for testability.
var ExecCommand = exec.Command

// Run starts the target command with MOSALLOC_SOCK set, kills its process
// group when SIGINT arrives, and waits for it to exit. Returns the child's exit
// code.
func Run(cfg *RunConfig) (int, error) {
	if len(cfg.Command) == 0 {
		return output.ExitError, fmt.Errorf("exec: no command given")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("MOSALLOC_SOCK=%s", cfg.SocketPath))
	cmd.Env = append(cmd.Env, cfg.Env...)
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr
	cmd.SysProcAttr = processGroupAttr()

	if err := cmd.Start(); err != nil {
		return output.ExitError, fmt.Errorf("exec: starting %s: %w", cfg.Command[0], err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		for range sigCh {
			if cmd.Process != nil {
				killProcessGroup(cmd.Process.Pid)
			}
		}
	}()
	defer func() { signal.Stop(sigCh); close(sigCh) }()

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			killProcessGroup(cmd.Process.Pid)
		}
		fmt.Fprintf(cfg.Stderr, "mosalloc: %s timed out after %s\n", cfg.Command[0], cfg.Timeout)
		return output.ExitTimeout, nil
	}

	return exitCodeFromErr(waitErr), nil
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return output.ExitSuccess
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return output.ExitError
}
