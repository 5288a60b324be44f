package download

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/gkatanacio/resumable-downloader/progress"
)

// Options represents the configuration for the download service.
type Options struct {
	// DestDir is the directory the downloaded files are written to.
	DestDir string

	// ChunkSize is the number of bytes read from the response before each write.
	ChunkSize int

	// StatusCooldown is the wait after an unexpected HTTP status.
	StatusCooldown time.Duration

	// TransportCooldown is the wait after a connection error or read timeout.
	TransportCooldown time.Duration

	// EarlyCloseCooldown is the wait after the server ended the body early.
	EarlyCloseCooldown time.Duration

	// MaxConsecutiveFaults is the number of faults in a row, without a single
	// byte written in between, after which a download fails.
	// Zero uses the default; a negative value retries forever.
	MaxConsecutiveFaults int

	// ProgressInterval is the minimum time between two progress lines.
	ProgressInterval time.Duration

	// ProgressOutput receives the progress lines. Default: os.Stderr
	ProgressOutput io.Writer

	// Parallel is the number of files downloaded at the same time by DownloadAll.
	Parallel int
}

// DefaultOptions returns the options used for long unattended batch downloads.
func DefaultOptions() Options {
	return Options{
		DestDir:              ".",
		ChunkSize:            4 * 1024 * 1024,
		StatusCooldown:       10 * time.Second,
		TransportCooldown:    10 * time.Second,
		EarlyCloseCooldown:   5 * time.Second,
		MaxConsecutiveFaults: 10,
		ProgressInterval:     progress.DefaultInterval,
		Parallel:             1,
	}
}

// withDefaults fills the zero fields of opts from DefaultOptions.
func (opts Options) withDefaults() Options {
	defaults := DefaultOptions()
	if opts.DestDir == "" {
		opts.DestDir = defaults.DestDir
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.StatusCooldown <= 0 {
		opts.StatusCooldown = defaults.StatusCooldown
	}
	if opts.TransportCooldown <= 0 {
		opts.TransportCooldown = defaults.TransportCooldown
	}
	if opts.EarlyCloseCooldown <= 0 {
		opts.EarlyCloseCooldown = defaults.EarlyCloseCooldown
	}
	if opts.MaxConsecutiveFaults == 0 {
		opts.MaxConsecutiveFaults = defaults.MaxConsecutiveFaults
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaults.ProgressInterval
	}
	if opts.Parallel <= 0 {
		opts.Parallel = defaults.Parallel
	}
	return opts
}

// State is the position of a download in its state machine.
type State int

const (
	StateProbeSize State = iota
	StateResumeLoop
	StateCooldown
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateProbeSize:
		return "probe_size"
	case StateResumeLoop:
		return "resume_loop"
	case StateCooldown:
		return "cooldown"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalYAML renders the state by name in reports.
func (s State) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Result is the outcome of one resource of a batch.
type Result struct {
	URL   string
	Path  string
	Bytes int64
	State State
	Err   error
}

// session holds the state of one resource download. The local file length
// is the only resumption cursor; pos mirrors it and is advanced after every
// successful write.
type session struct {
	id    string
	url   string
	name  string
	path  string
	total int64
	known bool

	pos      int64
	startPos int64
	faults   int
	state    State

	// written counts the bytes the current attempt wrote, pos may shrink on restart.
	written int64
	// rangeRejected is set while the last answer was a 416 without Content-Range.
	rangeRejected bool

	reporter *progress.Reporter
	logger   *zap.Logger
}
