// Package testutils provides shared test infrastructure: a range-capable
// HTTP origin with failure injection and, behind the integration build tag,
// a MinIO container.
package testutils

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// TestFile defines a test file with size and data.
type TestFile struct {
	Name string
	Size int64
	Data []byte
}

// GenerateTestData generates test data of the given size.
// For files <= 10MB, uses deterministic pattern. For larger files, uses random data.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 256)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// Origin is an HTTP server that serves test files with range request
// support and counts every request it receives.
type Origin struct {
	*httptest.Server

	mu         sync.Mutex
	files      map[string][]byte
	requests   map[string]int
	total      int
	failRange  map[string]int // "name@start" -> status
	failAll    map[string]int
	hideLength map[string]bool
	noRanges   map[string]bool
	truncate   map[string]int
}

// StartOrigin starts an Origin serving files. It is closed when the test ends.
func StartOrigin(t *testing.T, files ...TestFile) *Origin {
	t.Helper()

	o := &Origin{
		files:      make(map[string][]byte),
		requests:   make(map[string]int),
		failRange:  make(map[string]int),
		failAll:    make(map[string]int),
		hideLength: make(map[string]bool),
		noRanges:   make(map[string]bool),
		truncate:   make(map[string]int),
	}
	for _, f := range files {
		o.files[f.Name] = f.Data
	}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Close)
	return o
}

// Base returns the origin base URL that file names are appended to.
func (o *Origin) Base() string {
	return o.URL + "/"
}

// Requests returns the total number of requests served.
func (o *Origin) Requests() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// RequestsFor returns the number of requests for name.
func (o *Origin) RequestsFor(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[name]
}

// FailRange makes every ranged GET of name starting at start answer status.
func (o *Origin) FailRange(name string, start int64, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failRange[fmt.Sprintf("%s@%d", name, start)] = status
}

// Fail makes every request for name answer status.
func (o *Origin) Fail(name string, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failAll[name] = status
}

// HideLength omits Content-Length from HEAD responses for name.
func (o *Origin) HideLength(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hideLength[name] = true
}

// IgnoreRanges makes the origin answer ranged GETs of name with the whole
// file and a 200 status.
func (o *Origin) IgnoreRanges(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.noRanges[name] = true
}

// Truncate makes whole-file GETs of name answer only its first n bytes, with
// a matching Content-Length. HEAD still reports the full size.
func (o *Origin) Truncate(name string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.truncate[name] = n
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	rangeHeader := r.Header.Get("Range")

	o.mu.Lock()
	o.total++
	o.requests[name]++
	data, ok := o.files[name]
	status := o.failAll[name]
	hide := o.hideLength[name]
	noRanges := o.noRanges[name]
	cut, truncated := o.truncate[name]
	if status == 0 && rangeHeader != "" {
		first, _, _ := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
		status = o.failRange[name+"@"+first]
	}
	o.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	size := int64(len(data))
	etag := fmt.Sprintf(`"%s"`, name)

	if r.Method == http.MethodHead {
		if hide {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", etag)
		return
	}

	if rangeHeader == "" || noRanges {
		if truncated && cut < len(data) {
			data = data[:cut]
			size = int64(cut)
		}
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("ETag", etag)
		w.Write(data)
		return
	}

	// Parse range header: bytes=start-end
	first, last, _ := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	start, _ := strconv.ParseInt(first, 10, 64)
	end, _ := strconv.ParseInt(last, 10, 64)

	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= size {
		end = size - 1
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusPartialContent)
	w.Write(data[start : end+1])
}
