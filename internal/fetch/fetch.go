// Package fetch wraps the external media-fetching library behind a small
// interface and owns the supported-source policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// supportedDomains is the fixed allowlist of video sources, checked by
// substring match against the raw URL.
var supportedDomains = []string{
	"tiktok.com",
	"youtube.com",
	"youtu.be",
	"vk.com",
	"instagram.com",
}

// DefaultTimeout is the socket timeout passed to the fetch library.
// Media downloads are long-running, so this is generous by design of
// minutes, not seconds.
const DefaultTimeout = 10 * time.Minute

// Supported reports whether the URL belongs to one of the supported
// video sources.
func Supported(url string) bool {
	for _, domain := range supportedDomains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}

// SupportedSources returns a human-readable list for guidance replies.
func SupportedSources() string {
	return "TikTok, YouTube, VK or Instagram"
}

// RequiresCredentials reports whether the URL belongs to a source that
// needs authentication (currently only Instagram).
func RequiresCredentials(url string) bool {
	return strings.Contains(url, "instagram.com")
}

// Credentials holds source-specific login details.
type Credentials struct {
	Username string
	Password string
}

// Request describes one fetch: the target URL, an output path template
// scoped to the job workspace (yt-dlp "%(ext)s" style), the socket
// timeout, and optional credentials.
type Request struct {
	URL            string
	OutputTemplate string
	Timeout        time.Duration
	Credentials    *Credentials
}

// Fetcher retrieves media for a Request and returns the resolved output
// file path.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// Error marks a failure raised by the fetch library itself, as opposed
// to an unexpected internal error. Only the first line of a fetch error
// is ever shown to users.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsFetchError reports whether err originated in the fetch library.
func IsFetchError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// FirstLine returns the first line of an error message, the only part
// surfaced to users.
func FirstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// fetchError wraps err as a fetch-library failure.
func fetchError(format string, args ...interface{}) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}
