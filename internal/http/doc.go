// Package http provides the origin transport used to size and fetch source
// files.
//
// This package handles:
//   - Connection pooling for parallel range downloads
//   - HEAD requests to get file metadata (redirects are followed)
//   - Range requests for chunked downloads
//   - Bounded retry of transient failures (network errors and 5xx)
//
// 4xx responses are permanent and map to ErrNotFound, ErrForbidden or
// ErrUnauthorized.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	// Get file info
//	info, err := client.Head(ctx, url)
//	// info.Size is -1 when the origin sent no Content-Length
//
//	// Download a range
//	resp, err := client.GetRange(ctx, url, startByte, endByte)
//	defer resp.Body.Close()
package http
