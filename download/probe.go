package download

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/gkatanacio/resumable-downloader/transport"
)

// Prober discovers the total length of remote resources.
type Prober struct {
	transport *transport.Policy
	logger    *zap.Logger
}

func NewProber(policy *transport.Policy, logger *zap.Logger) *Prober {
	return &Prober{
		transport: policy,
		logger:    logger,
	}
}

// Probe sends a HEAD request for url and returns the declared Content-Length.
// known is false when the request fails, the status is not 2xx, or the length
// is missing, unparsable or zero. The size is a hint for progress and
// completion checks, so failures are never returned.
func (p *Prober) Probe(ctx context.Context, url string) (total int64, known bool) {
	resp, err := p.transport.Head(ctx, url)
	if err != nil {
		p.logger.Debug("size probe failed", zap.String("url", url), zap.Error(err))
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Debug("size probe rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return 0, false
	}

	size := resp.ContentLength
	if v := resp.Header.Get("Content-Length"); v != "" {
		size, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.logger.Debug("invalid content length", zap.String("url", url), zap.String("value", v))
			return 0, false
		}
	}

	if size <= 0 {
		return 0, false
	}

	return size, true
}
