// Package artwork downloads poster and still images from the image host.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
)

// Downloader fetches images by reference (e.g. "/abc.jpg") and writes them
// to disk.
type Downloader struct {
	BaseURL string // e.g. https://image.tmdb.org/t/p/
	Size    string // e.g. w500
	HTTP    *http.Client
	Logger  *slog.Logger
}

// URL returns the full image URL for ref.
func (d *Downloader) URL(ref string) string {
	return d.BaseURL + d.Size + ref
}

// Download writes the image ref to dest. It returns false without touching
// the network when ref is empty or dest already exists. An existing dest is
// never overwritten. On failure a partially written dest is removed before
// the error is returned.
func (d *Downloader) Download(ctx context.Context, ref, dest string) (bool, error) {
	if ref == "" || Exists(dest) {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL(ref), nil)
	if err != nil {
		return false, fmt.Errorf("build image request: %w", err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch image %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("fetch image %s: unexpected status %s", ref, resp.Status)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(out, resp.Body)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(dest); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			d.logger().Warn("remove partial image", "path", dest, "error", rerr)
		}
		return false, fmt.Errorf("write %s: %w", dest, err)
	}
	d.logger().Debug("image downloaded", "ref", ref, "path", dest, "size", humanize.Bytes(uint64(n)))
	return true, nil
}

// Exists reports whether path is already present. Stat errors other than
// not-exist count as present so callers never clobber a file they cannot
// inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func (d *Downloader) client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
