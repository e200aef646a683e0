package gcs

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestListParsesSiteObjects(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Contains(t, r.URL.Path, "/storage/v1/b/shots/o")
		assert.Equal(t, "prod/home/", r.URL.Query().Get("prefix"))
		return jsonResponse(r, http.StatusOK, `{"kind":"storage#objects","items":[
			{"name":"prod/home/2026-10-18/08-00-00.png","size":"12","updated":"2026-10-18T08:00:01Z"},
			{"name":"prod/home/stray.txt","size":"1","updated":"2026-10-18T08:00:01Z"}
		]}`), nil
	})
	store, err := New(client, Config{Bucket: "shots", Prefix: "/prod/"})
	require.NoError(t, err)

	infos, err := store.List(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, monitor.ArtifactKey{SiteID: "home", Date: "2026-10-18", Name: "08-00-00.png"}, infos[0].Key)
	assert.EqualValues(t, 12, infos[0].Size)
	assert.Equal(t, 2026, infos[0].ModTime.Year())
}

func TestDeleteToleratesMissingObject(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
		return jsonResponse(r, http.StatusNotFound, `{"error":{"code":404,"message":"No such object"}}`), nil
	})
	store, err := New(client, Config{Bucket: "shots"})
	require.NoError(t, err)

	err = store.Delete(context.Background(), monitor.ArtifactKey{SiteID: "home", Date: "2026-10-18", Name: "08-00-00.png"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.True(t, strings.HasPrefix(paths[0], http.MethodDelete))
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, fn roundTripperFunc) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{Transport: fn}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
		Request:    r,
	}
}
