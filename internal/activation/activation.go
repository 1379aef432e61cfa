// Package activation confirms that a started workload reached its serving
// state by watching its live output for signal tokens.
package activation

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/trly/nfops/internal/log"
)

const maxLineSize = 1024 * 1024

// LogSource opens a workload's output. With follow set the stream starts at
// the current end and stays open.
type LogSource interface {
	Logs(ctx context.Context, follow bool) (io.ReadCloser, error)
}

// Detector scans workload output for activation signals.
type Detector struct {
	clock  clock.Clock
	logger log.Logger
}

// NewDetector creates a detector timing waits on clk.
func NewDetector(clk clock.Clock, logger log.Logger) *Detector {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Detector{clock: clk, logger: logger}
}

// AwaitActive follows src from now and returns true as soon as every token
// has appeared in some line. Tokens match independently, in any order. It
// returns false when timeout passes or the stream ends first. Each call is a
// separate scan.
func (d *Detector) AwaitActive(ctx context.Context, src LogSource, tokens []string, timeout time.Duration) (bool, error) {
	pending := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		pending[t] = struct{}{}
	}
	if len(pending) == 0 {
		return true, nil
	}

	return d.scan(ctx, src, timeout, func(line string) bool {
		for t := range pending {
			if strings.Contains(line, t) {
				d.logger.Debug("Matched activation token", "token", t)
				delete(pending, t)
			}
		}
		return len(pending) == 0
	})
}

// AwaitLine follows src from now and returns true once a single line
// contains every substring.
func (d *Detector) AwaitLine(ctx context.Context, src LogSource, subsets []string, timeout time.Duration) (bool, error) {
	if len(subsets) == 0 {
		return true, nil
	}
	return d.scan(ctx, src, timeout, func(line string) bool {
		for _, s := range subsets {
			if !strings.Contains(line, s) {
				return false
			}
		}
		return true
	})
}

// Settle waits for delay on the detector clock.
func (d *Detector) Settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-d.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Detector) scan(ctx context.Context, src LogSource, timeout time.Duration, done func(string) bool) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := src.Logs(ctx, true)
	if err != nil {
		return false, err
	}
	defer func() { _ = stream.Close() }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stream)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	deadline := d.clock.After(timeout)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				d.logger.Debug("Output stream ended before activation")
				return false, nil
			}
			if done(line) {
				return true, nil
			}
		case <-deadline:
			d.logger.Debug("Activation wait timed out", "timeout", timeout)
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
