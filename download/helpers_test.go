package download

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_fileNameFromURL(t *testing.T) {
	testCases := map[string]struct {
		url         string
		want        string
		specificErr error
	}{
		"multi-part archive": {url: "http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.001", want: "images.zip.001"},
		"https with query":   {url: "https://example.com/a/b/file.tar?token=abc", want: "file.tar"},
		"escaped name":       {url: "https://example.com/my%20file.bin", want: "my file.bin"},
		"trailing slash":     {url: "https://example.com/dir/", want: "dir"},
		"root":               {url: "https://example.com/", specificErr: ErrNoFileName},
		"no path":            {url: "https://example.com", specificErr: ErrNoFileName},
		"parent segment":     {url: "https://example.com/a/..", specificErr: ErrNoFileName},
		"unsupported scheme": {url: "s3://bucket/key.zip", specificErr: ErrUnsupportedScheme},
		"relative url":       {url: "images.zip.001", specificErr: ErrUnsupportedScheme},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			got, err := fileNameFromURL(tc.url)
			if tc.specificErr != nil {
				assert.ErrorIs(t, err, tc.specificErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_localLength(t *testing.T) {
	dir := t.TempDir()

	n, err := localLength(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(dir, "part")
	require.NoError(t, os.WriteFile(path, make([]byte, 1234), 0o644))
	n, err = localLength(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)

	_, err = localLength(dir)
	assert.Error(t, err)
}

func Test_parseContentRange(t *testing.T) {
	testCases := map[string]struct {
		header       string
		wantFirst    int64
		wantComplete int64
		wantErr      bool
	}{
		"satisfied range":   {header: "bytes 4000000-9999999/10000000", wantFirst: 4000000, wantComplete: 10000000},
		"unknown complete":  {header: "bytes 10-19/*", wantFirst: 10, wantComplete: -1},
		"unsatisfied range": {header: "bytes */50000", wantFirst: -1, wantComplete: 50000},
		"missing unit":      {header: "0-9/10", wantErr: true},
		"missing size":      {header: "bytes 0-9", wantErr: true},
		"bad start":         {header: "bytes x-9/10", wantErr: true},
		"bad size":          {header: "bytes 0-9/ten", wantErr: true},
		"empty":             {header: "", wantErr: true},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			first, complete, err := parseContentRange(tc.header)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantFirst, first)
			assert.Equal(t, tc.wantComplete, complete)
		})
	}
}

func Test_fill(t *testing.T) {
	t.Run("fills across short reads", func(t *testing.T) {
		buf := make([]byte, 8)
		n, err := fill(iotest.OneByteReader(strings.NewReader("0123456789")), buf)
		require.NoError(t, err)
		assert.Equal(t, 8, n)
		assert.Equal(t, "01234567", string(buf))
	})

	t.Run("short final chunk ends with EOF", func(t *testing.T) {
		buf := make([]byte, 8)
		n, err := fill(strings.NewReader("012"), buf)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 3, n)
	})

	t.Run("read error is not EOF", func(t *testing.T) {
		boom := errors.New("connection reset")
		r := io.MultiReader(strings.NewReader("012"), iotest.ErrReader(boom))
		n, err := fill(r, make([]byte, 8))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, n)
	})
}

func Test_sleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}

func Test_Options_withDefaults(t *testing.T) {
	opts := Options{MaxConsecutiveFaults: -1, Parallel: 3}.withDefaults()

	defaults := DefaultOptions()
	assert.Equal(t, defaults.ChunkSize, opts.ChunkSize)
	assert.Equal(t, 10*time.Second, opts.StatusCooldown)
	assert.Equal(t, 10*time.Second, opts.TransportCooldown)
	assert.Equal(t, 5*time.Second, opts.EarlyCloseCooldown)
	assert.Equal(t, -1, opts.MaxConsecutiveFaults, "negative limit means unbounded")
	assert.Equal(t, 3, opts.Parallel)
	assert.Equal(t, ".", opts.DestDir)

	assert.Equal(t, 10, Options{}.withDefaults().MaxConsecutiveFaults)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateProbeSize, "probe_size"},
		{StateResumeLoop, "resume_loop"},
		{StateCooldown, "cooldown"},
		{StateComplete, "complete"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
