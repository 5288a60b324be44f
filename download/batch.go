package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DownloadAll downloads the given URLs in order. With the default Parallel of 1
// each resource is complete before the next one starts. A failed resource does
// not stop the others; the returned error joins every failure and the results
// are in the order of urls. A URL whose local file is already the destination
// of an earlier URL fails with ErrDuplicateDestination and is not downloaded.
func (s *Service) DownloadAll(ctx context.Context, urls []string) ([]Result, error) {
	if len(urls) == 0 {
		return nil, ErrNoSourceUrls
	}

	results := make([]Result, len(urls))
	owners := make(map[string]string, len(urls))

	var eg errgroup.Group
	eg.SetLimit(s.opts.Parallel)

	for i, url := range urls {
		if name, err := fileNameFromURL(url); err == nil {
			path := filepath.Join(s.opts.DestDir, name)
			if first, taken := owners[path]; taken {
				results[i] = Result{
					URL:   url,
					State: StateFailed,
					Err:   fmt.Errorf("%w: %s is written by %s", ErrDuplicateDestination, path, first),
				}
				s.logger.Error("download skipped", zap.String("url", url), zap.Error(results[i].Err))
				continue
			}
			owners[path] = url
		}

		i, url := i, url
		eg.Go(func() error {
			results[i] = s.downloadResult(ctx, url)
			return nil
		})
	}
	_ = eg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, r.Err))
		}
	}

	return results, errors.Join(errs...)
}

func (s *Service) downloadResult(ctx context.Context, url string) Result {
	s.logger.Info("downloading", zap.String("url", url))

	sess, err := s.download(ctx, url)
	result := Result{URL: url, State: StateFailed, Err: err}
	if sess == nil {
		s.logger.Error("download failed", zap.String("url", url), zap.Error(err))
		return result
	}

	result.Path = sess.path
	result.State = sess.state
	result.Bytes = sess.pos

	if info, statErr := os.Stat(sess.path); statErr == nil {
		result.Bytes = info.Size()
	}

	if err != nil {
		s.logger.Error("download failed",
			zap.String("url", url),
			zap.Int64("bytes", result.Bytes),
			zap.Error(err))
		return result
	}

	s.logger.Info("OK",
		zap.String("path", result.Path),
		zap.Int64("bytes", result.Bytes),
		zap.String("size", humanize.Bytes(uint64(result.Bytes))))

	return result
}
