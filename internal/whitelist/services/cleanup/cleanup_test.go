package cleanup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/domain"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/source"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newService(t *testing.T, allowComplements bool, out *bytes.Buffer) *Service {
	t.Helper()
	logger := log.NewNoopLogger()
	ruler := whitelist.NewRuler(allowComplements,
		whitelist.WithTLDSource(domain.NewTLDSet("com", "org", "co.uk")),
		whitelist.WithLogger(logger),
	)
	return New(ruler, source.NewOpener(nil, logger), out, logger)
}

const sourceList = `# hosts-style blocklist
example.org
www.example.org
ads.example.net
example.net
tracker.brand.co.uk
brand.com
brand.de
unrelated.io
`

func TestRun_Stdout(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		Source:    writeFile(t, dir, "source.txt", sourceList),
		Whitelist: []string{writeFile(t, dir, "wl.txt", "# plain rules\nexample.org\n")},
		All:       []string{writeFile(t, dir, "all.txt", "example.net\n")},
		Reg:       []string{writeFile(t, dir, "reg.txt", "^tracker\\.\n")},
		RZD:       []string{writeFile(t, dir, "rzd.txt", "brand\n")},
	}

	var out bytes.Buffer
	res, err := newService(t, false, &out).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "# hosts-style blocklist\nwww.example.org\nbrand.de\nunrelated.io\n", out.String())
	assert.Equal(t, Result{Rules: 5, Read: 9, Kept: 4, Removed: 5}, res)
}

func TestRun_AllowComplements(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		Source:    writeFile(t, dir, "source.txt", "example.org\nwww.example.org\nother.org\n"),
		Whitelist: []string{writeFile(t, dir, "wl.txt", "example.org\n")},
	}

	var out bytes.Buffer
	_, err := newService(t, true, &out).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "other.org\n", out.String())
}

func TestRun_OutputFile(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "cleaned.txt")
	writeFile(t, dir, "cleaned.txt", "stale content\n")
	req := Request{
		Source:    writeFile(t, dir, "source.txt", "keep.example\n  Drop.Example  \n"),
		Output:    output,
		Whitelist: []string{writeFile(t, dir, "wl.txt", "drop.example\n")},
	}

	var out bytes.Buffer
	res, err := newService(t, false, &out).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out.String(), "nothing goes to stdout when an output file is given")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "keep.example\n", string(data))
	assert.Equal(t, 1, res.Removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tivilsta-", "temporary file must not be left behind")
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "source.txt", "a.example\n")

	t.Run("missing rule file", func(t *testing.T) {
		_, err := newService(t, false, &bytes.Buffer{}).Run(context.Background(), Request{
			Source:    src,
			Whitelist: []string{filepath.Join(dir, "absent.txt")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load rules")
	})
	t.Run("missing source", func(t *testing.T) {
		_, err := newService(t, false, &bytes.Buffer{}).Run(context.Background(), Request{
			Source: filepath.Join(dir, "absent-source.txt"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open source")
	})
	t.Run("output directory missing", func(t *testing.T) {
		_, err := newService(t, false, &bytes.Buffer{}).Run(context.Background(), Request{
			Source: src,
			Output: filepath.Join(dir, "no", "such", "dir", "out.txt"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create temp output")
	})
}

func TestRun_InvalidRegexDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		Source: writeFile(t, dir, "source.txt", "ads.example\nkeep.example\n"),
		Reg:    []string{writeFile(t, dir, "reg.txt", "(unclosed\n^ads\\.\n")},
	}

	var out bytes.Buffer
	_, err := newService(t, false, &out).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "keep.example\n", out.String())
}
