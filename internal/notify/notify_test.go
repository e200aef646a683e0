package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/report"
	"github.com/JakeFAU/sitewatch/internal/storage/memory"
)

var cycleTime = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

func TestComposeListsFailedAndWorkingSites(t *testing.T) {
	t.Parallel()

	r := sampleReport(t, nil)
	subject, html, text, err := Compose(r, "https://status.example.com", []string{"home-08-00-00.png (3 B)"})
	require.NoError(t, err)

	require.Equal(t, "Website Monitor: 1 of 3 sites down (66.7% uptime)", subject)
	require.Contains(t, text, "Uptime: 66.7%")
	require.Contains(t, text, "Average response time: 230 ms")
	require.Contains(t, text, "Shop (https://shop.example.com): [timeout] navigation timeout")
	require.Contains(t, text, "Home: 120 ms")
	require.Contains(t, text, "Status page: https://status.example.com")
	require.Contains(t, text, "home-08-00-00.png (3 B)")

	require.Contains(t, html, "<h2>Website Monitor: 1 of 3 sites down (66.7% uptime)</h2>")
	require.Contains(t, html, `<a href="https://status.example.com">`)
}

func TestComposeEscapesHTML(t *testing.T) {
	t.Parallel()

	site := monitor.SiteConfig{ID: "x", Name: "<script>x</script>", URL: "https://x.example.com"}
	r := report.Aggregate("c1", cycleTime, []monitor.CaptureResult{
		monitor.Failed(site, cycleTime, monitor.ErrorKindUnknown, errors.New("<b>bad</b>")),
	})
	_, html, text, err := Compose(r, "", nil)
	require.NoError(t, err)
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "&lt;script&gt;")
	require.Contains(t, text, "<b>bad</b>")
	require.NotContains(t, text, "Working sites")
	require.NotContains(t, text, "Status page")
}

func TestDispatcherAttachesSnapshotsAndReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewArtifactStore()
	r := sampleReport(t, store)
	transport := NewMemoryTransport()
	d := NewDispatcher(transport, store, Config{
		From:            "monitor@example.com",
		To:              []string{"ops@example.com"},
		AttachArtifacts: true,
		AttachReport:    true,
	}, nil)

	require.NoError(t, d.Notify(ctx, r))
	sent := transport.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	require.Equal(t, []string{"ops@example.com"}, msg.To)
	require.Len(t, msg.Attachments, 3)
	require.Equal(t, "home-08-00-00.png", msg.Attachments[0].Filename)
	require.Equal(t, "image/png", msg.Attachments[0].ContentType)
	require.Equal(t, []byte("png"), msg.Attachments[0].Data)
	require.Equal(t, "blog-08-00-00.jpg", msg.Attachments[1].Filename)
	require.Equal(t, "image/jpeg", msg.Attachments[1].ContentType)

	last := msg.Attachments[2]
	require.Equal(t, "report-c1.json", last.Filename)
	var decoded monitor.CycleReport
	require.NoError(t, json.Unmarshal(last.Data, &decoded))
	require.Equal(t, 3, decoded.TotalSites)
	require.Equal(t, 66.7, decoded.UptimePercent)
}

func TestDispatcherSkipsMissingArtifacts(t *testing.T) {
	t.Parallel()

	r := sampleReport(t, nil)
	transport := NewMemoryTransport()
	d := NewDispatcher(transport, memory.NewArtifactStore(), Config{
		From: "monitor@example.com", To: []string{"ops@example.com"}, AttachArtifacts: true,
	}, nil)

	require.NoError(t, d.Notify(context.Background(), r))
	require.Empty(t, transport.Sent()[0].Attachments)
}

func TestDispatcherWrapsTransportFailure(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	transport.FailWith(errors.New("smtp down"))
	d := NewDispatcher(transport, nil, Config{From: "a@example.com", To: []string{"b@example.com"}}, nil)

	err := d.Notify(context.Background(), sampleReport(t, nil))
	var syncErr *monitor.SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, "send", syncErr.Op)
	require.ErrorContains(t, err, "smtp down")
}

func TestDispatcherRejectsMissingRecipients(t *testing.T) {
	t.Parallel()

	transport := NewMemoryTransport()
	d := NewDispatcher(transport, nil, Config{From: "a@example.com"}, nil)
	err := d.Notify(context.Background(), sampleReport(t, nil))
	require.ErrorContains(t, err, "recipient")
	require.Empty(t, transport.Sent())
}

func TestMailgunTransportSendsMultipartMessage(t *testing.T) {
	t.Parallel()

	var (
		gotPath    string
		gotSubject string
		gotTo      string
		gotFiles   int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			_ = r.ParseMultipartForm(1 << 20)
			if r.MultipartForm != nil {
				gotFiles = len(r.MultipartForm.File["attachment"])
			}
		} else {
			_ = r.ParseForm()
		}
		gotSubject = r.FormValue("subject")
		gotTo = r.FormValue("to")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<20261018.1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	t.Cleanup(srv.Close)

	transport, err := NewMailgunTransport(MailgunConfig{Domain: "mg.example.com", APIKey: "key-test", APIBase: srv.URL + "/v3"})
	require.NoError(t, err)

	err = transport.Send(context.Background(), Message{
		From:        "monitor@mg.example.com",
		To:          []string{"ops@example.com"},
		Subject:     "hello",
		Text:        "body",
		HTML:        "<p>body</p>",
		Attachments: []Attachment{{Filename: "a.png", ContentType: "image/png", Data: []byte("png")}},
	})
	require.NoError(t, err)
	require.Equal(t, "/v3/mg.example.com/messages", gotPath)
	require.Equal(t, "hello", gotSubject)
	require.Equal(t, "ops@example.com", gotTo)
	require.Equal(t, 1, gotFiles)
}

func TestNewMailgunTransportRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewMailgunTransport(MailgunConfig{Domain: "mg.example.com"})
	require.Error(t, err)
}

// sampleReport builds the three-site report used across tests. When store is
// non-nil the successful snapshots are written to it first.
func sampleReport(t *testing.T, store *memory.ArtifactStore) monitor.CycleReport {
	t.Helper()
	home := monitor.SiteConfig{ID: "home", Name: "Home", URL: "https://home.example.com"}
	blog := monitor.SiteConfig{
		ID: "blog", Name: "Blog", URL: "https://blog.example.com",
		Screenshot: monitor.ScreenshotOptions{Format: monitor.FormatJPEG},
	}
	shop := monitor.SiteConfig{ID: "shop", Name: "Shop", URL: "https://shop.example.com"}

	homeRef, blogRef := "memory://home/2026-10-18/08-00-00.png", "memory://blog/2026-10-18/08-00-00.jpg"
	if store != nil {
		var err error
		homeRef, err = store.Put(context.Background(), monitor.NewArtifactKey("home", cycleTime, monitor.FormatPNG), "image/png", []byte("png"))
		require.NoError(t, err)
		blogRef, err = store.Put(context.Background(), monitor.NewArtifactKey("blog", cycleTime, monitor.FormatJPEG), "image/jpeg", []byte("jpg"))
		require.NoError(t, err)
	}
	return report.Aggregate("c1", cycleTime, []monitor.CaptureResult{
		monitor.Succeeded(home, cycleTime, 120*time.Millisecond, &monitor.PageStats{Title: "Home"}, homeRef),
		monitor.Succeeded(blog, cycleTime, 340*time.Millisecond, nil, blogRef),
		monitor.Failed(shop, cycleTime, monitor.ErrorKindTimeout, errors.New("navigation timeout")),
	})
}
