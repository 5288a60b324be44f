// Package transport provides the HTTP request policy shared by every request
// the downloader issues.
//
// The policy handles:
//   - Independent connect and read timeouts
//   - Retries of GET and HEAD on 429, 500, 502, 503, 504 and connection errors
//   - Exponential backoff between retries (multiplier 2, capped)
//   - Aborting a response body that stalls for longer than the read timeout
//
// Methods other than GET and HEAD are sent once.
package transport
