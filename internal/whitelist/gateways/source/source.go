// Package source opens rule files and input lists, either local paths or
// remote URLs, and splits them into lines.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	logpkg "github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/transport"
)

// maxLineBytes allows long regex rules and hosts lines.
const maxLineBytes = 1 << 20

// IsRemote reports whether location names a URL rather than a local path.
func IsRemote(location string) bool {
	return strings.Contains(location, "://")
}

// Opener resolves a location to a readable stream.
type Opener struct {
	fetcher transport.Fetcher
	logger  logpkg.Logger
}

// NewOpener returns an Opener that fetches remote locations through f.
func NewOpener(f transport.Fetcher, logger logpkg.Logger) *Opener {
	if logger == nil {
		logger = logpkg.GetLogger()
	}
	return &Opener{fetcher: f, logger: logger}
}

// Open returns a reader over location. Remote documents are fetched in full.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !IsRemote(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		return f, nil
	}
	if o.fetcher == nil {
		return nil, fmt.Errorf("open %s: remote sources are not enabled", location)
	}
	body, err := o.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	o.logger.Debug(map[string]any{"source": location, "bytes": len(body)}, "source_fetched")
	return io.NopCloser(bytes.NewReader(body)), nil
}

// ReadLines loads every line of location. When prefix is non-empty it is
// prepended to each rule line; blank and comment lines are then dropped
// so they do not turn into rules.
func (o *Opener) ReadLines(ctx context.Context, location, prefix string) ([]string, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out []string
	err = ScanLines(rc, func(line string) {
		if prefix == "" {
			out = append(out, line)
			return
		}
		trimmed := utils.CanonicalName(line)
		if trimmed == "" || utils.IsComment(trimmed) {
			return
		}
		out = append(out, prefix+strings.TrimSpace(line))
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	o.logger.Debug(map[string]any{"source": location, "prefix": prefix, "lines": len(out)}, "source_read")
	return out, nil
}

// ScanLines calls fn with each line of r, without the line terminator.
// A byte order mark at the start of the stream is removed.
func ScanLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	first := true
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		fn(line)
	}
	return scanner.Err()
}
