package imagefetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Some image hosts reject non-browser clients.
const userAgent = "Mozilla/5.0"

// maxImageBytes caps downloads; inlined payloads blow up request sizes fast.
const maxImageBytes = 20 << 20

// Fetcher downloads an image and re-encodes it as a base64 data URL for
// data image mode.
type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchDataURL downloads rawURL and returns data:<mime>;base64,<payload>.
func (f *Fetcher) FetchDataURL(ctx context.Context, rawURL string) (string, error) {
	safeURL, err := SanitizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, safeURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch image %q: status %d", rawURL, resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image %q: %w", rawURL, err)
	}
	if len(content) > maxImageBytes {
		return "", fmt.Errorf("image %q exceeds %d bytes", rawURL, maxImageBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = GuessMimeType(rawURL)
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	return fmt.Sprintf("data:%s;base64,%s", mime, encoded), nil
}

// SanitizeURL percent-encodes path and query; meme archives are full of
// URLs with raw CJK characters that the HTTP client refuses as-is.
func SanitizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host")
	}
	// Dropping RawPath makes String() re-encode the decoded path, which
	// normalizes any raw unencoded characters. Same for the query.
	u.RawPath = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// GuessMimeType falls back to the URL extension when the server does not
// say what it served.
func GuessMimeType(rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	}
	return "image/jpeg"
}
