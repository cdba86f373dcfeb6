package toolkit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdin io.Reader, onLine func(string)) error
}

// commandExecutor runs the bridge as a child process. maxLine caps a single
// output line; zero means maxLineBytes.
type commandExecutor struct {
	maxLine int
}

func (e commandExecutor) Run(ctx context.Context, binary string, args []string, stdin io.Reader, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdin = stdin
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
	)
	limit := e.maxLine
	if limit <= 0 {
		limit = maxLineBytes
	}
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, min(64*1024, limit)), limit)
		for scanner.Scan() {
			line := scanner.Text()
			if onLine != nil {
				mu.Lock()
				onLine(line)
				mu.Unlock()
			}
		}
		if err := scanner.Err(); err != nil {
			// Stop the bridge so the other stream reaches EOF, then drain
			// this one so the child never blocks on a full pipe.
			once.Do(func() {
				scanErr = err
				_ = cmd.Process.Kill()
			})
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()
	if scanErr != nil {
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
