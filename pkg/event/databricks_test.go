package event

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// newWorkspace fakes the two Databricks endpoints the uploader touches: the
// OAuth token endpoint and the Files API.
func newWorkspace(t *testing.T) (*httptest.Server, *atomic.Int64, chan string) {
	t.Helper()

	tokenCalls := &atomic.Int64{}
	uploads := make(chan string, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oidc/v1/token":
			tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if got := r.Form.Get("grant_type"); got != "client_credentials" {
				http.Error(w, "bad grant type "+got, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))

		case strings.HasPrefix(r.URL.Path, "/api/2.0/fs/files/"):
			if r.Method != http.MethodPut {
				http.Error(w, "method", http.StatusMethodNotAllowed)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			body, _ := io.ReadAll(r.Body)
			uploads <- r.URL.Path + "|" + string(body)
			w.WriteHeader(http.StatusNoContent)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, tokenCalls, uploads
}

func newTestDatabricksUploader(ctx context.Context, srv *httptest.Server) *databricksUploader {
	cc := &clientcredentials.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oidc/v1/token",
		Scopes:       []string{"all-apis"},
	}
	source := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(ctx), tokenRefreshMargin)

	return &databricksUploader{
		httpClient: oauth2.NewClient(ctx, source),
		host:       srv.URL,
		volumePath: "/Volumes/main/default/dns",
	}
}

func TestDatabricksUpload(t *testing.T) {
	srv, tokenCalls, uploads := newWorkspace(t)
	u := newTestDatabricksUploader(context.Background(), srv)

	payload := []byte(`{"name":"example.com."}` + "\n")
	if err := u.Upload(context.Background(), kindRequest, payload); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	select {
	case got := <-uploads:
		path, body, _ := strings.Cut(got, "|")
		pattern := regexp.MustCompile(`^/api/2\.0/fs/files/Volumes/main/default/dns/request/\d{4}-\d{2}-\d{2}/[0-9a-f]{32}\.json$`)
		if !pattern.MatchString(path) {
			t.Errorf("upload path = %q, want match for %s", path, pattern)
		}
		if body != string(payload) {
			t.Errorf("body = %q, want payload unchanged", body)
		}
	case <-time.After(time.Second):
		t.Fatal("no upload received")
	}

	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1", got)
	}
}

func TestDatabricksTokenReused(t *testing.T) {
	srv, tokenCalls, uploads := newWorkspace(t)
	u := newTestDatabricksUploader(context.Background(), srv)

	for i := 0; i < 3; i++ {
		if err := u.Upload(context.Background(), kindResponse, []byte("{}\n")); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		<-uploads
	}

	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1 (cached until near expiry)", got)
	}
}

func TestDatabricksUploadBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oidc/v1/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
			return
		}
		http.Error(w, "volume does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	u := newTestDatabricksUploader(context.Background(), srv)

	err := u.Upload(context.Background(), kindRequest, []byte("{}\n"))
	if err == nil {
		t.Fatal("Upload() = nil, want error on 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not carry the status code", err)
	}
}
