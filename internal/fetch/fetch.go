// Package fetch retrieves archives from the vendor's publication site:
// listing the index page, downloading named zips, and extracting the
// embedded MDB file. The sync orchestrator is its only consumer.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var (
	// ErrNotFound is returned when the server has no archive by the
	// requested name.
	ErrNotFound = errors.New("archive not found on server")

	// ErrTransport wraps network and HTTP-level failures. The
	// orchestrator treats them as run-aborting; nothing has been
	// committed when they occur.
	ErrTransport = errors.New("transport error")
)

// updatePattern matches incremental archives, e.g. up08FEB.zip or
// up08FEB25.zip. The naming convention sorts lexicographically in
// publication order within a year.
var updatePattern = regexp.MustCompile(`(?i)^up\d{2}[a-z]{3}(\d{2})?\.zip$`)

// IsUpdateArchive reports whether name follows the incremental archive
// naming convention.
func IsUpdateArchive(name string) bool {
	return updatePattern.MatchString(name)
}

// Client lists and downloads archives from one base URL.
type Client struct {
	baseURL string
	tempDir string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a fetch client. Downloads land in tempDir, which is
// created on demand. If logger is nil, a default logger writing to
// stderr is used.
func NewClient(baseURL, tempDir string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[fetch] ", log.LstdFlags)
	}
	// No overall client timeout: the full snapshot is hundreds of MB
	// and must be allowed to stream on slow links. Connection setup and
	// first-byte latency are still bounded; callers cancel via ctx.
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tempDir: tempDir,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: time.Minute,
			},
		},
		logger: logger,
	}
}

// ListArchives scrapes the index page and returns every zip filename
// linked from it, in page order. Both absolute and relative hrefs are
// handled; query strings are stripped.
func (c *Client) ListArchives(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrTransport, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: listing %s: HTTP %d", ErrTransport, c.baseURL, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing index page: %v", ErrTransport, err)
	}
	return zipLinks(doc), nil
}

// zipLinks walks the parsed document and collects linked zip filenames.
func zipLinks(doc *html.Node) []string {
	var found []string
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if name, ok := zipName(attr.Val); ok {
					if _, dup := seen[name]; !dup {
						seen[name] = struct{}{}
						found = append(found, name)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return found
}

// zipName extracts the zip filename from an href, or reports false.
func zipName(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	name := path.Base(u.Path)
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return "", false
	}
	return name, true
}

// Download fetches one archive into the temp dir and returns its local
// path. A 404 maps to ErrNotFound; other failures to ErrTransport.
func (c *Client) Download(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(c.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	archiveURL := c.baseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	c.logger.Printf("Downloading %s", name)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: downloading %s: %v", ErrTransport, name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: downloading %s: HTTP %d", ErrTransport, name, resp.StatusCode)
	}

	dest := filepath.Join(c.tempDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}

	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%w: writing %s: %v", ErrTransport, name, err)
	}

	c.logger.Printf("Downloaded %s (%.1f MB)", name, float64(written)/(1<<20))
	return dest, nil
}

// ExtractMDB extracts the first .mdb or .accdb entry from a downloaded
// zip into the temp dir and returns its path.
func (c *Client) ExtractMDB(zipPath string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		lower := strings.ToLower(entry.Name)
		if !strings.HasSuffix(lower, ".mdb") && !strings.HasSuffix(lower, ".accdb") {
			continue
		}

		// Flatten the entry name; vendor zips are flat but don't trust it.
		dest := filepath.Join(c.tempDir, filepath.Base(entry.Name))
		if err := extractEntry(entry, dest); err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
		c.logger.Printf("Extracted %s", filepath.Base(dest))
		return dest, nil
	}

	return "", fmt.Errorf("no .mdb or .accdb file inside %s", zipPath)
}

func extractEntry(entry *zip.File, dest string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
	}
	return err
}

// CleanTempDir removes downloaded and extracted files, returning how
// many were deleted. Missing dir is not an error.
func (c *Client) CleanTempDir() (int, error) {
	entries, err := os.ReadDir(c.tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.tempDir, entry.Name())); err != nil {
			return deleted, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}
