// internal/dispatch/dispatch.go
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Job is one independent external command. Jobs in a batch write to
// disjoint output paths, so the pool needs no locking between them.
type Job struct {
	Name       string   // stable identifier, used for logging
	Argv       []string // command and arguments
	LogPath    string   // file receiving combined stdout/stderr; "" discards
	StdoutPath string   // when set, stdout goes here and LogPath gets stderr only
}

// Result is the per-job completion report. A non-zero exit status lands
// in Err but is not fatal to the batch; callers decide by checking the
// expected output afterwards.
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
}

// Runner executes one job. The exec-backed runner is the default;
// tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, j Job) error
}

// ExecRunner runs jobs as subprocesses. No timeout is imposed: external
// jobs run to completion or the operator kills them.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, j Job) error {
	if len(j.Argv) == 0 {
		return fmt.Errorf("dispatch: job %s has empty argv", j.Name)
	}
	cmd := exec.CommandContext(ctx, j.Argv[0], j.Argv[1:]...)
	if j.LogPath != "" {
		f, err := os.OpenFile(j.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("dispatch: job %s: %w", j.Name, err)
		}
		defer func() { _ = f.Close() }()
		cmd.Stdout = f
		cmd.Stderr = f
	}
	if j.StdoutPath != "" {
		out, err := os.Create(j.StdoutPath)
		if err != nil {
			return fmt.Errorf("dispatch: job %s: %w", j.Name, err)
		}
		defer func() { _ = out.Close() }()
		cmd.Stdout = out
	}
	return cmd.Run()
}

// RunAll runs jobs across a fixed-size pool of `concurrency` workers and
// blocks until every job finishes. Jobs are pulled in input order but may
// complete out of order; results come back indexed like the input.
func RunAll(ctx context.Context, log *slog.Logger, jobs []Job, concurrency int) []Result {
	return RunAllWith(ctx, log, ExecRunner{}, jobs, concurrency)
}

// RunAllWith is RunAll with an explicit Runner.
func RunAllWith(ctx context.Context, log *slog.Logger, r Runner, jobs []Job, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(jobs) {
		concurrency = len(jobs)
	}

	type indexed struct {
		idx int
		job Job
	}
	feed := make(chan indexed)
	results := make([]Result, len(jobs))

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for it := range feed {
				start := time.Now()
				err := r.Run(ctx, it.job)
				d := time.Since(start)
				if err != nil {
					log.Warn("job finished with error", "job", it.job.Name, "err", err)
				} else {
					log.Debug("job finished", "job", it.job.Name, "elapsed", d.Round(time.Millisecond))
				}
				results[it.idx] = Result{Job: it.job, Err: err, Duration: d}
			}
		}()
	}

feed:
	for i, j := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case feed <- indexed{idx: i, job: j}:
		}
	}
	close(feed)
	wg.Wait()

	if ctx.Err() != nil {
		for i := range results {
			if results[i].Job.Name == "" {
				results[i] = Result{Job: jobs[i], Err: ctx.Err()}
			}
		}
	}
	return results
}

// MissingOutputError reports that an external job returned without
// producing its expected output file. The per-job log is where the
// operator looks next.
type MissingOutputError struct {
	Stage  string
	Path   string
	LogDir string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("%s: expected output %s was never produced; check the job logs under %s",
		e.Stage, e.Path, e.LogDir)
}
