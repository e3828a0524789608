// Package cleanup removes whitelisted entries from a list: it loads rule
// files into a Ruler, then streams the source list and keeps every line the
// ruler does not whitelist.
package cleanup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/domain"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/source"
)

// Ruler is the part of the rule engine the cleanup needs.
type Ruler interface {
	ParseVec(lines []string)
	IsWhitelisted(subject string) bool
}

// Opener resolves rule and list locations.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	ReadLines(ctx context.Context, location, prefix string) ([]string, error)
}

// Request describes one cleanup run.
type Request struct {
	// Source is the list to clean, a path or URL.
	Source string
	// Output is the destination file. Empty writes to the service's stdout.
	Output string

	// Whitelist files are parsed as written. All, Reg and RZD files get the
	// matching flag prepended to each rule line.
	Whitelist []string
	All       []string
	Reg       []string
	RZD       []string
}

// Result summarizes a run.
type Result struct {
	Rules   int
	Read    int
	Kept    int
	Removed int
}

// Service runs cleanups against one Ruler.
type Service struct {
	ruler  Ruler
	opener Opener
	stdout io.Writer
	logger log.Logger
}

// New builds a Service. stdout receives the cleaned list when a Request has
// no Output.
func New(ruler Ruler, opener Opener, stdout io.Writer, logger log.Logger) *Service {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Service{ruler: ruler, opener: opener, stdout: stdout, logger: logger}
}

// Run loads every rule file, then cleans the source.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	rules, err := s.LoadRules(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res, err := s.Clean(ctx, req.Source, req.Output)
	res.Rules = rules
	return res, err
}

// LoadRules feeds each rule file to the ruler, one ParseVec per file, and
// returns the number of lines handed over.
func (s *Service) LoadRules(ctx context.Context, req Request) (int, error) {
	groups := []struct {
		prefix    string
		locations []string
	}{
		{"", req.Whitelist},
		{domain.FlagAll, req.All},
		{domain.FlagReg, req.Reg},
		{domain.FlagRZD, req.RZD},
	}

	total := 0
	for _, g := range groups {
		for _, loc := range g.locations {
			lines, err := s.opener.ReadLines(ctx, loc, g.prefix)
			if err != nil {
				return total, fmt.Errorf("load rules: %w", err)
			}
			s.ruler.ParseVec(lines)
			total += len(lines)
			s.logger.Info(map[string]any{"file": loc, "lines": len(lines)}, "Loaded rule file")
		}
	}
	return total, nil
}

// Clean streams src and writes each non-whitelisted line, unchanged, to
// output. A file output is written to a temporary file in the same directory
// and renamed into place once complete.
func (s *Service) Clean(ctx context.Context, src, output string) (res Result, err error) {
	in, err := s.opener.Open(ctx, src)
	if err != nil {
		return res, fmt.Errorf("open source: %w", err)
	}
	defer func() { err = multierr.Append(err, in.Close()) }()

	if output == "" {
		w := bufio.NewWriter(s.stdout)
		res, err = s.filter(in, w)
		if err != nil {
			return res, err
		}
		return res, w.Flush()
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".tivilsta-*")
	if err != nil {
		return res, fmt.Errorf("create temp output: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	res, err = s.filter(in, w)
	if err == nil {
		err = w.Flush()
	}
	err = multierr.Append(err, tmp.Close())
	if err != nil {
		return res, fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return res, fmt.Errorf("move output into place: %w", err)
	}
	committed = true

	s.logger.Info(map[string]any{"output": output, "kept": res.Kept, "removed": res.Removed}, "Wrote cleaned list")
	return res, nil
}

func (s *Service) filter(r io.Reader, w *bufio.Writer) (Result, error) {
	var (
		res  Result
		werr error
	)
	err := source.ScanLines(r, func(line string) {
		res.Read++
		if s.ruler.IsWhitelisted(line) {
			res.Removed++
			return
		}
		res.Kept++
		if werr == nil {
			_, werr = w.WriteString(line + "\n")
		}
	})
	if err == nil {
		err = werr
	}
	return res, err
}
