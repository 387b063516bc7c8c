package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ligustah/haul/internal/transfer"
)

// FileResult is the outcome for one source file.
type FileResult struct {
	Name string
	// Prefix is the destination key prefix of the file.
	Prefix string
	State  State
	// FailedAt is the state the file was in when it failed.
	FailedAt State
	Size     int64
	// Parts is the number of ranges downloaded, 1 for a whole-file download.
	Parts   int
	Objects []transfer.Object
	Err     error
	Elapsed time.Duration
}

// Report summarises a pipeline run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Files    []FileResult
}

// Failed returns the results of the files that failed.
func (r *Report) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.State == Failed {
			failed = append(failed, f)
		}
	}
	return failed
}

// Count returns the number of files in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, f := range r.Files {
		if f.State == s {
			n++
		}
	}
	return n
}

// Unfinished returns the number of files that never reached a terminal
// state, because the run stopped early.
func (r *Report) Unfinished() int {
	n := 0
	for _, f := range r.Files {
		if !f.State.Terminal() {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed file, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, &FileError{Name: f.Name, State: f.FailedAt, Err: f.Err})
	}
	return errors.Join(errs...)
}

// String returns a one-line summary of r.
func (r *Report) String() string {
	return fmt.Sprintf("run %s: %d done, %d skipped, %d failed, %d unfinished",
		r.RunID, r.Count(Done), r.Count(Skipped), r.Count(Failed), r.Unfinished())
}

// FileError is the failure of one source file.
type FileError struct {
	Name  string
	State State
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: failed while %s: %v", e.Name, e.State, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
