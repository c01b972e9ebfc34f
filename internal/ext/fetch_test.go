package ext

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

func testFetchConfig() FetchConfig {
	cfg := DefaultFetchConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Retries = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

func newFetchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		_, _ = w.Write([]byte(`{"answer": 42}`))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		_, _ = w.Write([]byte(r.Method + " " + r.Header.Get("X-Token") + " " + buf.String()))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/json", http.StatusFound)
	})
	mux.HandleFunc("/zstd", func(w http.ResponseWriter, r *http.Request) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write(enc.EncodeAll([]byte("compressed with zstd"), nil))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("compressed with gzip"))
		_ = gz.Close()
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fetchRuntime(t *testing.T, perms permissions.WebPermissions, cfg FetchConfig) *sandbox.Runtime {
	t.Helper()
	return newRuntime(t, NewFetch(hostapi.New(perms), NewFetchClient(cfg, nil)))
}

func TestFetchAllowedURL(t *testing.T) {
	srv := newFetchServer(t)
	allow := permissions.NewAllowlist()
	allow.AllowURL(srv.URL + "/json")
	rt := fetchRuntime(t, allow, testFetchConfig())

	got, err := await[map[string]interface{}](t, rt, `
		(async () => {
			const r = await fetch("`+srv.URL+`/json");
			const body = await r.json();
			return {status: r.status, ok: r.ok, answer: body.answer, method: r.headers["x-method"]};
		})()`)
	require.NoError(t, err)
	assert.EqualValues(t, 200, got["status"])
	assert.Equal(t, true, got["ok"])
	assert.EqualValues(t, 42, got["answer"])
	assert.Equal(t, "GET", got["method"])
}

func TestFetchBareOriginMatchesRootGrant(t *testing.T) {
	srv := newFetchServer(t)
	allow := permissions.NewAllowlist()
	allow.AllowURL(srv.URL + "/")
	rt := fetchRuntime(t, allow, testFetchConfig())

	got, err := await[int64](t, rt, `fetch("`+srv.URL+`").then(r => r.status)`)
	require.NoError(t, err)
	assert.Equal(t, int64(http.StatusNotFound), got)
}

func TestFetchSendsInit(t *testing.T) {
	srv := newFetchServer(t)
	rt := fetchRuntime(t, permissions.Default{}, testFetchConfig())

	got, err := await[string](t, rt, `
		fetch("`+srv.URL+`/echo", {method: "post", headers: {"X-Token": "t0k"}, body: "payload"})
			.then(r => r.text())`)
	require.NoError(t, err)
	assert.Equal(t, "POST t0k payload", got)
}

func TestFetchDenials(t *testing.T) {
	srv := newFetchServer(t)
	dir := tempDir(t)
	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o644))

	allow := permissions.NewAllowlist()
	allow.AllowURL(srv.URL + "/redirect")
	rt := fetchRuntime(t, allow, testFetchConfig())

	tests := []struct {
		name string
		url  string
	}{
		{"unlisted url", srv.URL + "/json"},
		{"redirect target", srv.URL + "/redirect"},
		{"file url", "file://" + filepath.ToSlash(secret)},
		{"vsock", "vsock:3:1024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := await[interface{}](t, rt, `fetch("`+tt.url+`")`)
			require.Error(t, err)
			assert.Equal(t, ErrNamePermissionDenied, rejectionName(t, err))
		})
	}

	t.Run("unsupported scheme throws", func(t *testing.T) {
		assert.Equal(t, "TypeError:", caught(t, rt, `fetch("ftp://example.com/")`))
	})
}

func TestFetchFollowsAllowedRedirect(t *testing.T) {
	srv := newFetchServer(t)
	allow := permissions.NewAllowlist()
	allow.AllowURL(srv.URL + "/redirect")
	allow.AllowURL(srv.URL + "/json")
	rt := fetchRuntime(t, allow, testFetchConfig())

	got, err := await[map[string]interface{}](t, rt, `
		fetch("`+srv.URL+`/redirect").then(r => ({url: r.url, redirected: r.redirected}))`)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/json", got["url"])
	assert.Equal(t, true, got["redirected"])
}

func TestFetchFileURL(t *testing.T) {
	dir := tempDir(t)
	file := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(file, []byte("from disk"), 0o644))

	allow := permissions.NewAllowlist()
	allow.AllowOpen(file, true, false)
	rt := fetchRuntime(t, allow, testFetchConfig())

	got, err := await[string](t, rt, `fetch("file://`+filepath.ToSlash(file)+`").then(r => r.text())`)
	require.NoError(t, err)
	assert.Equal(t, "from disk", got)
}

func TestFetchClientDecodesBodies(t *testing.T) {
	srv := newFetchServer(t)
	client := NewFetchClient(testFetchConfig(), nil)

	for _, encoding := range []string{"zstd", "gzip"} {
		t.Run(encoding, func(t *testing.T) {
			resp, err := client.Do(context.Background(), FetchRequest{URL: srv.URL + "/" + encoding}, nil)
			require.NoError(t, err)
			assert.Equal(t, "compressed with "+encoding, string(resp.Body))
		})
	}
}

func TestFetchClientBodyLimit(t *testing.T) {
	srv := newFetchServer(t)
	cfg := testFetchConfig()
	cfg.MaxBodySize = 16
	client := NewFetchClient(cfg, nil)

	_, err := client.Do(context.Background(), FetchRequest{URL: srv.URL + "/large"}, nil)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Equal(t, uint32(0), client.Breaker().Counts().TotalFailures)
}

func TestFetchClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.Retries = 2
	client := NewFetchClient(cfg, nil)

	resp, err := client.Do(context.Background(), FetchRequest{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "recovered", string(resp.Body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchClientPassesThroughFinalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewFetchClient(testFetchConfig(), nil)
	resp, err := client.Do(context.Background(), FetchRequest{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, uint32(1), client.Breaker().Counts().TotalFailures)
}
