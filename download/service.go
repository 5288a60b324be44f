package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gkatanacio/resumable-downloader/progress"
	"github.com/gkatanacio/resumable-downloader/transport"
)

var (
	ErrNoSourceUrls       = errors.New("source URLs required")
	ErrUnsupportedScheme  = errors.New("only http and https URLs are supported")
	ErrNoFileName         = errors.New("URL has no file name")
	ErrLocalExceedsRemote = errors.New("local file is larger than the remote resource")
	ErrRangeMismatch      = errors.New("partial content does not start at the requested offset")
	ErrTooManyFaults      = errors.New("too many consecutive faults")

	ErrDuplicateDestination = errors.New("destination file already used by another URL in the batch")
)

// Service is the service layer that contains operations for downloading.
type Service struct {
	opts      Options
	transport *transport.Policy
	prober    *Prober
	logger    *zap.Logger
}

func NewService(opts Options, policy *transport.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		opts:      opts.withDefaults(),
		transport: policy,
		prober:    NewProber(policy, logger),
		logger:    logger,
	}
}

// Download fetches url into the destination directory and returns the local
// path once the resource is complete. An existing local file is treated as the
// already received prefix of the resource and only the remaining bytes are
// requested. Interrupted attempts are resumed after a cooldown until the
// consecutive fault limit is reached.
func (s *Service) Download(ctx context.Context, url string) (string, error) {
	sess, err := s.download(ctx, url)
	if err != nil {
		return "", err
	}

	return sess.path, nil
}

func (s *Service) download(ctx context.Context, url string) (*session, error) {
	name, err := fileNameFromURL(url)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.opts.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	sess := &session{
		id:    uuid.NewString(),
		url:   url,
		name:  name,
		path:  filepath.Join(s.opts.DestDir, name),
		state: StateProbeSize,
	}
	sess.logger = s.logger.With(zap.String("session", sess.id), zap.String("file", name))

	sess.pos, err = localLength(sess.path)
	if err != nil {
		sess.state = StateFailed
		return sess, fmt.Errorf("inspect local file: %w", err)
	}
	sess.startPos = sess.pos

	sess.total, sess.known = s.prober.Probe(ctx, url)
	sess.reporter = progress.NewReporter(s.opts.ProgressOutput, name, sess.total, sess.known, s.opts.ProgressInterval)

	sess.logger.Info("starting download",
		zap.String("url", url),
		zap.String("path", sess.path),
		zap.Int64("resume_from", sess.pos),
		zap.Int64("total", sess.total),
		zap.Bool("total_known", sess.known))

	if sess.known {
		switch {
		case sess.pos == sess.total:
			sess.state = StateComplete
			sess.logger.Info("already complete", zap.Int64("bytes", sess.pos))
			return sess, nil
		case sess.pos > sess.total:
			sess.state = StateFailed
			return sess, fmt.Errorf("%w: %s has %d bytes, remote has %d",
				ErrLocalExceedsRemote, sess.path, sess.pos, sess.total)
		}
	}

	for {
		sess.state = StateResumeLoop
		sess.written = 0

		done, fault, err := s.attempt(ctx, sess)
		if err != nil {
			sess.state = StateFailed
			sess.reporter.Break()
			return sess, err
		}
		if done {
			sess.state = StateComplete
			sess.reporter.Finish(sess.pos)
			sess.logger.Info("download complete",
				zap.Int64("bytes", sess.pos),
				zap.Int64("received", sess.pos-sess.startPos))
			return sess, nil
		}

		sess.reporter.Break()
		if err := ctx.Err(); err != nil {
			sess.state = StateFailed
			return sess, err
		}

		if sess.written > 0 {
			sess.faults = 0
		}
		sess.faults++

		if s.opts.MaxConsecutiveFaults > 0 && sess.faults >= s.opts.MaxConsecutiveFaults {
			sess.state = StateFailed
			sess.logger.Error("giving up",
				zap.Int("faults", sess.faults),
				zap.Int64("bytes", sess.pos),
				zap.Error(fault))
			return sess, &FaultLimitError{URL: url, Faults: sess.faults, Last: fault}
		}

		cooldown := s.cooldown(fault.Kind)
		sess.logger.Warn("download interrupted, resuming after cooldown",
			zap.Stringer("fault", fault.Kind),
			zap.Error(fault),
			zap.Int64("resume_from", sess.pos),
			zap.Duration("cooldown", cooldown),
			zap.Int("consecutive_faults", sess.faults))

		sess.state = StateCooldown
		if err := sleep(ctx, cooldown); err != nil {
			sess.state = StateFailed
			return sess, err
		}
	}
}

// attempt issues one request from the current position and streams the
// response into the local file. A fault means the attempt may be retried,
// err is a local failure that retrying cannot fix.
func (s *Service) attempt(ctx context.Context, sess *session) (done bool, fault *Fault, err error) {
	header := http.Header{}
	if sess.pos > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", sess.pos))
	}

	rejectedBefore := sess.rangeRejected
	sess.rangeRejected = false

	resp, err := s.transport.Get(ctx, sess.url, header)
	if err != nil {
		return false, &Fault{Kind: FaultTransport, Err: err}, nil
	}
	defer resp.Body.Close()

	restart := sess.pos == 0
	switch resp.StatusCode {
	case http.StatusPartialContent:
		if cr := resp.Header.Get("Content-Range"); cr != "" && sess.pos > 0 {
			first, _, perr := parseContentRange(cr)
			if perr != nil {
				return false, &Fault{Kind: FaultStatus, StatusCode: resp.StatusCode, Err: perr}, nil
			}
			if first != sess.pos {
				return false, &Fault{
					Kind:       FaultStatus,
					StatusCode: resp.StatusCode,
					Err:        fmt.Errorf("%w: got %q for offset %d", ErrRangeMismatch, cr, sess.pos),
				}, nil
			}
		}

	case http.StatusOK:
		if sess.pos > 0 {
			// the body starts at byte 0, appending it would corrupt the file
			sess.logger.Warn("server ignored range request, restarting from zero",
				zap.Int64("discarded", sess.pos))
			restart = true
		}

	case http.StatusRequestedRangeNotSatisfiable:
		if s.rangeExhausted(sess, resp, rejectedBefore) {
			return true, nil, nil
		}
		return false, &Fault{Kind: FaultStatus, StatusCode: resp.StatusCode}, nil

	default:
		return false, &Fault{Kind: FaultStatus, StatusCode: resp.StatusCode}, nil
	}

	return s.stream(sess, resp.Body, restart)
}

// stream writes body to the local file chunk by chunk. Only whole chunks, or
// the last short chunk of a cleanly ended body, are written.
func (s *Service) stream(sess *session, body io.Reader, restart bool) (bool, *Fault, error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if restart {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	file, err := os.OpenFile(sess.path, flag, 0o644)
	if err != nil {
		return false, nil, fmt.Errorf("open local file: %w", err)
	}
	if restart {
		sess.pos = 0
	}

	// never write past the known total
	if sess.known {
		body = io.LimitReader(body, sess.total-sess.pos)
	}

	buf := make([]byte, s.opts.ChunkSize)
	var readErr error
	for {
		n, err := fill(body, buf)
		if n > 0 && (err == nil || err == io.EOF) {
			if _, werr := file.Write(buf[:n]); werr != nil {
				file.Close()
				return false, nil, fmt.Errorf("write local file: %w", werr)
			}
			sess.pos += int64(n)
			sess.written += int64(n)
			sess.reporter.Update(sess.pos)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if err := file.Close(); err != nil {
		// the file length on disk is what a retry resumes from
		if n, lerr := localLength(sess.path); lerr == nil {
			sess.pos = n
		}
		return false, &Fault{Kind: FaultTransport, Err: fmt.Errorf("close local file: %w", err)}, nil
	}

	// a body shorter than its Content-Length is a premature close, like a
	// chunked body that ends before the known total
	if errors.Is(readErr, io.ErrUnexpectedEOF) {
		return false, &Fault{Kind: FaultEarlyClose, Err: readErr}, nil
	}
	if readErr != nil {
		return false, &Fault{Kind: FaultTransport, Err: readErr}, nil
	}

	if !sess.known || sess.pos >= sess.total {
		return true, nil, nil
	}

	return false, &Fault{
		Kind: FaultEarlyClose,
		Err:  fmt.Errorf("connection closed at %d of %d bytes", sess.pos, sess.total),
	}, nil
}

// rangeExhausted reports whether a 416 answer to a resumed request means the
// local file already holds the whole resource. Without a known total and
// without Content-Range the answer is trusted once it repeats for the same
// offset.
func (s *Service) rangeExhausted(sess *session, resp *http.Response, rejectedBefore bool) bool {
	if sess.pos == 0 {
		return false
	}
	if sess.known {
		return sess.pos == sess.total
	}

	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		sess.rangeRejected = true
		return rejectedBefore
	}

	_, complete, err := parseContentRange(cr)
	return err == nil && complete == sess.pos
}

func (s *Service) cooldown(kind FaultKind) time.Duration {
	switch kind {
	case FaultTransport:
		return s.opts.TransportCooldown
	case FaultEarlyClose:
		return s.opts.EarlyCloseCooldown
	default:
		return s.opts.StatusCooldown
	}
}
