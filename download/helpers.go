package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// fileNameFromURL returns the last path segment of an HTTP(S) URL, which
// names the local file.
func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	name := path.Base(u.Path)
	switch name {
	case ".", "/", "..":
		return "", fmt.Errorf("%w: %s", ErrNoFileName, rawURL)
	}

	return name, nil
}

// localLength returns the length of the file at path, or 0 if there is none.
func localLength(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}

	return info.Size(), nil
}

// fill reads from r until buf is full or the stream stops. The returned error
// is io.EOF only when the stream ended cleanly.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// sleep waits for d, or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseContentRange parses "bytes first-last/complete" and "bytes */complete".
// first is -1 for the unsatisfied form and complete is -1 when the server
// reports "*".
func parseContentRange(header string) (first, complete int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}

	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}

	complete = -1
	if size != "*" {
		complete, err = strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid Content-Range size: %w", err)
		}
	}

	if rng == "*" {
		return -1, complete, nil
	}

	start, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}

	first, err = strconv.ParseInt(start, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range start: %w", err)
	}

	return first, complete, nil
}
