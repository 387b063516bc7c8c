// Package downloader fetches source files from an HTTP origin to local disk.
//
// A Downloader resolves file sizes with HEAD requests and downloads either
// the whole file or a set of byte ranges, one part file per range. Range
// downloads of one file run concurrently on a bounded pool; a failure of any
// range cancels the others and removes every part file of that file.
//
// # Usage
//
//	d := downloader.New("https://data.example.com/", downloader.Options{
//	    Workers:  10,
//	    Logger:   logger,
//	})
//
//	size, err := d.Size(ctx, "dataset.7z")
//	plan, err := chunked.NewPlan(size, chunkSize)
//	parts, err := d.DownloadParts(ctx, file, plan, runDir)
//
// Responses are streamed to disk through a fixed write buffer
// (DefaultBufferSize). A range whose body is shorter or longer than requested
// fails with transfer.ErrDownloadFailed.
package downloader
