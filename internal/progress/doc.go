// Package progress provides progress reporting for transfers.
//
// This package outputs human-readable progress information to stdout,
// including completion percentage, transfer speed, and ETA. A Reporter lives
// for a whole run; each phase (the range downloads of a file, the uploads of
// a tree) is reported between Begin and End.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{Output: os.Stderr})
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.Begin(progress.Task{
//	    Action:     "Downloading",
//	    Name:       "dataset.7z",
//	    TotalSize:  size,
//	    TotalItems: plan.Parts(),
//	})
//	// Workers call ItemStarted, BytesWritten and ItemCompleted.
//	reporter.End()
//
// # Output Format
//
//	[haul] Downloading: dataset.7z
//	[haul] Total size: 2.5 GiB | Items: 52 x 50.0 MiB | Workers: 10
//	[haul] Progress: 45.2% | 1.13 GiB / 2.5 GiB | Speed: 120 MiB/s | ETA: 11s
//	[haul] Items: 23 completed | 10 in-progress | 19 pending
//
// FormatBytes and ParseBytes convert between byte counts and strings such as
// "50MiB" or "1GB".
package progress
