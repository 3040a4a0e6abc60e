package blocklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"advoid/pkg/logging"
)

// Loader errors. Loading failures are fatal at startup; the caller does not
// retry.
var (
	ErrFetch   = errors.New("failed to fetch blocklist")
	ErrDecode  = errors.New("blocklist is not valid UTF-8")
	ErrHTTPBad = errors.New("unexpected HTTP status")
)

// httpClient is the process-wide client used for URL sources. Long timeout
// for large lists.
var httpClient = &http.Client{Timeout: 60 * time.Second}

// Load reads a newline-delimited name list from a filesystem path or an
// http(s) URL and returns the canonicalised Set.
func Load(ctx context.Context, source string, logger *logging.Logger) (*Set, error) {
	startTime := time.Now()

	var body io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %d fetching %s", ErrHTTPBad, resp.StatusCode, source)
		}
		body = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		body = f
	}
	defer func() { _ = body.Close() }()

	set, err := parse(body)
	if err != nil {
		return nil, err
	}

	logger.Info("Blocklist loaded",
		"source", source,
		"domains", set.Len(),
		"duration", time.Since(startTime))

	return set, nil
}

// parse applies the line rules: trim whitespace, drop blanks and '#'
// comments, lowercase, canonicalise to FQDN, coalesce duplicates.
func parse(r io.Reader) (*Set, error) {
	names := make(map[string]struct{})
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !utf8.ValidString(line) {
			return nil, ErrDecode
		}
		names[Canonical(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	return &Set{names: names}, nil
}
