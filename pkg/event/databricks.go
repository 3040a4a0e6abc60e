package event

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenRefreshMargin is how long before expiry a cached OAuth token is
// refreshed.
const tokenRefreshMargin = 60 * time.Second

// databricksUploader PUTs each batch to the Databricks Files API under a
// Unity Catalog volume. The HTTP client carries a client-credentials bearer
// token that is cached and refreshed ahead of expiry.
type databricksUploader struct {
	httpClient *http.Client
	host       string
	volumePath string
}

// NewDatabricksSink creates a batching sink backed by a Databricks volume.
func NewDatabricksSink(ctx context.Context, host, clientID, clientSecret, volumePath string, opts Options) Sink {
	host = strings.TrimRight(host, "/")

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     host + "/oidc/v1/token",
		Scopes:       []string{"all-apis"},
	}
	source := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(ctx), tokenRefreshMargin)

	up := &databricksUploader{
		httpClient: oauth2.NewClient(ctx, source),
		host:       host,
		volumePath: strings.TrimRight(volumePath, "/"),
	}
	return newChannelSink(up, opts)
}

func (u *databricksUploader) Upload(ctx context.Context, kind string, payload []byte) error {
	url := fmt.Sprintf("%s/api/2.0/fs/files%s/%s", u.host, u.volumePath, u.path(kind, time.Now().UTC()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("databricks request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("databricks upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("databricks upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (u *databricksUploader) path(kind string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", kind, now.Format("2006-01-02"), NewID())
}
