package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biblemarker/biblemarker/internal/testutil"
)

// device runs CLI invocations against one database with a deterministic
// clock and sequential ids shared across invocations.
type device struct {
	t      *testing.T
	opts   *RootOptions
	db     string
	config string
}

func newDevice(t *testing.T) *device {
	t.Helper()
	return &device{
		t: t,
		opts: &RootOptions{
			Clock: testutil.NewDeterministicClock(),
			IDs:   testutil.NewSequentialIDs("id"),
		},
		db: filepath.Join(t.TempDir(), "biblemarker.db"),
	}
}

// withFolder points the device at an fs sync folder.
func (d *device) withFolder(dir string) *device {
	d.t.Helper()
	path := filepath.Join(d.t.TempDir(), "config.yaml")
	data := []byte("sync:\n  driver: fs\n  dir: " + dir + "\n  debounce: 10ms\n")
	require.NoError(d.t, os.WriteFile(path, data, 0o644))
	d.config = path
	return d
}

func (d *device) runContext(ctx context.Context, args ...string) (string, string, int) {
	d.t.Helper()
	full := append([]string{"--db", d.db}, args...)
	if d.config != "" {
		full = append([]string{"--config", d.config}, full...)
	}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := execute(ctx, d.opts, full, stdout, stderr)
	return stdout.String(), stderr.String(), code
}

func (d *device) run(args ...string) (string, string, int) {
	d.t.Helper()
	return d.runContext(context.Background(), args...)
}

// mustRun runs args and fails the test on a non-zero exit.
func (d *device) mustRun(args ...string) string {
	d.t.Helper()
	stdout, stderr, code := d.run(args...)
	require.Equal(d.t, ExitSuccess, code, "args %v\nstdout: %s\nstderr: %s", args, stdout, stderr)
	return stdout
}

// jsonResponse is CLIResponse with Data left raw for typed decoding.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runJSON runs args with --format json and decodes the envelope.
func (d *device) runJSON(args ...string) (jsonResponse, int) {
	d.t.Helper()
	stdout, stderr, code := d.run(append([]string{"--format", "json"}, args...)...)
	var resp jsonResponse
	require.NoError(d.t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s\nstderr: %s", stdout, stderr)
	return resp, code
}

// mustJSON runs args with --format json, requires success and decodes the
// data into v.
func (d *device) mustJSON(v any, args ...string) {
	d.t.Helper()
	resp, code := d.runJSON(args...)
	require.Equal(d.t, ExitSuccess, code, "args %v: %+v", args, resp.Error)
	require.Equal(d.t, "ok", resp.Status)
	require.NoError(d.t, json.Unmarshal(resp.Data, v))
}
