package fetch

import (
	"context"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLP is the production Fetcher backed by the yt-dlp binary via
// go-ytdlp. Format selection and site handling are delegated entirely to
// yt-dlp; this layer only maps a Request onto its flags.
type YTDLP struct{}

// NewYTDLP returns the production fetcher. Install ensures the yt-dlp
// binary is present, downloading it on first run.
func NewYTDLP(ctx context.Context) (*YTDLP, error) {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return nil, fetchError("install yt-dlp: %w", err)
	}
	return &YTDLP{}, nil
}

// Fetch downloads the requested media into the workspace-scoped output
// template and returns the resolved file path.
func (y *YTDLP) Fetch(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dl := ytdlp.New().
		Format("best").
		Output(req.OutputTemplate).
		SocketTimeout(timeout.Seconds()).
		GeoBypass().
		GeoBypassCountry("DE").
		NoWarnings().
		Quiet()

	if req.Credentials != nil {
		dl = dl.Username(req.Credentials.Username).Password(req.Credentials.Password)
	}

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return "", fetchError("download %s: %w", req.URL, err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil {
		return "", fetchError("extract info for %s: %w", req.URL, err)
	}
	for _, entry := range info {
		if entry.Filename != nil && *entry.Filename != "" {
			return *entry.Filename, nil
		}
	}
	return "", fetchError("no output file reported for %s", req.URL)
}
