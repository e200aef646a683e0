package statuspage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

func TestSyncOfflineTwiceOpensOneIncident(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Home Page", StatusOperational)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "navigation timeout"))
	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "navigation timeout"))

	require.Equal(t, StatusMajorOutage, fake.componentStatus(1))
	require.Len(t, fake.incidentList(), 1)
	require.Equal(t, 1, fake.count("PUT /api/components/1"))
	inc := fake.incidentList()[0]
	require.EqualValues(t, 1, inc.ComponentID)
	require.Contains(t, inc.Message, "navigation timeout")
}

func TestSyncRetriesIncidentAfterFailedCreate(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Home Page", StatusOperational)
	fake.failIncidentCreates(1)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{}, zap.NewNop())
	ctx := context.Background()

	err := syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "navigation timeout")
	var syncErr *monitor.SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, "create incident", syncErr.Op)
	require.Equal(t, StatusMajorOutage, fake.componentStatus(1))
	require.Empty(t, fake.incidentList())

	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "navigation timeout"))
	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "navigation timeout"))
	require.Len(t, fake.incidentList(), 1)
	require.Equal(t, 2, fake.count("POST /api/incidents"))
}

func TestSyncOfflineAfterResolvedIncidentOpensNewOne(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Home Page", StatusOperational)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{ResolveOnRecovery: true}, nil)
	ctx := context.Background()

	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "first outage"))
	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", true, nil, ""))
	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "second outage"))

	incidents := fake.incidentList()
	require.Len(t, incidents, 2)
	require.Equal(t, IncidentFixed, incidents[0].Status)
	require.Equal(t, IncidentInvestigating, incidents[1].Status)
}

func TestSyncOnlineIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Shop", StatusOperational)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{}, nil)

	require.NoError(t, syncer.SyncSiteStatus(context.Background(), "Shop", true, nil, ""))
	require.Zero(t, fake.count("PUT /api/components/1"))
	require.Empty(t, fake.incidentList())
}

func TestSyncCreatesMissingComponent(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{}, nil)

	require.NoError(t, syncer.SyncSiteStatus(context.Background(), "Blog", false, nil, "dns failure"))
	require.Equal(t, StatusMajorOutage, fake.componentStatus(1))
	require.Equal(t, 1, fake.count("POST /api/components"))
	require.Zero(t, fake.count("PUT /api/components/1"))
	require.Len(t, fake.incidentList(), 1)
}

func TestSyncWithoutTokenIsReadOnly(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	syncer := NewSyncer(fake.client(t, ""), SyncerConfig{}, nil)

	require.NoError(t, syncer.SyncSiteStatus(context.Background(), "Blog", false, nil, "down"))
	require.Zero(t, fake.count("POST /api/components"))
	require.Empty(t, fake.incidentList())
}

func TestSyncRecoveryResolvesIncidentsAndRecordsMetric(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Home Page", StatusOperational)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{ResponseTimeMetricID: 7, ResolveOnRecovery: true}, nil)
	ctx := context.Background()

	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", false, nil, "boom"))
	ms := int64(230)
	require.NoError(t, syncer.SyncSiteStatus(ctx, "Home Page", true, &ms, ""))

	require.Equal(t, StatusOperational, fake.componentStatus(1))
	require.Equal(t, IncidentFixed, fake.incidentList()[0].Status)
	require.Equal(t, 1, fake.count("POST /api/metrics/7/points"))
}

func TestSyncMatchesBySubstring(t *testing.T) {
	t.Parallel()

	fake := newFakeCachet(t, "token")
	fake.addComponent("Production Home Page", StatusOperational)
	syncer := NewSyncer(fake.client(t, "token"), SyncerConfig{}, nil)

	require.NoError(t, syncer.SyncSiteStatus(context.Background(), "Home Page", false, nil, ""))
	require.Equal(t, StatusMajorOutage, fake.componentStatus(1))
	require.Zero(t, fake.count("POST /api/components"))
	// No message, no incident.
	require.Empty(t, fake.incidentList())
}

func TestSyncReportsAPIErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":["nope"]}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, APIToken: "token"})
	require.NoError(t, err)

	err = NewSyncer(client, SyncerConfig{}, nil).SyncSiteStatus(context.Background(), "x", true, nil, "")
	var syncErr *monitor.SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, "list components", syncErr.Op)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestFindComponentPrefersExactMatch(t *testing.T) {
	t.Parallel()

	comps := []Component{{ID: 1, Name: "Home Page Staging"}, {ID: 2, Name: "Home Page"}}
	c, ok := FindComponent(comps, "Home Page")
	require.True(t, ok)
	require.EqualValues(t, 2, c.ID)

	_, ok = FindComponent(comps, "Blog")
	require.False(t, ok)
}

// fakeCachet is an in-memory status page speaking the JSON:API shape for
// components and the flat shape for incidents.
type fakeCachet struct {
	t     *testing.T
	token string
	srv   *httptest.Server

	mu               sync.Mutex
	components       []Component
	incidents        []Incident
	calls            map[string]int
	incidentFailures int
}

func newFakeCachet(t *testing.T, token string) *fakeCachet {
	t.Helper()
	f := &fakeCachet{t: t, token: token, calls: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/components", f.listComponents)
	mux.HandleFunc("POST /api/components", f.createComponent)
	mux.HandleFunc("PUT /api/components/{id}", f.updateComponent)
	mux.HandleFunc("GET /api/incidents", f.listIncidents)
	mux.HandleFunc("POST /api/incidents", f.createIncident)
	mux.HandleFunc("PUT /api/incidents/{id}", f.updateIncident)
	mux.HandleFunc("POST /api/metrics/{id}/points", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"id": 1})
	})
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		if r.Method != http.MethodGet && r.Header.Get("X-Cachet-Token") != f.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCachet) client(t *testing.T, token string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: f.srv.URL + "/", APIToken: token})
	require.NoError(t, err)
	return c
}

func (f *fakeCachet) addComponent(name string, status ComponentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.components = append(f.components, Component{ID: int64(len(f.components) + 1), Name: name, Status: status})
}

func (f *fakeCachet) componentStatus(id int64) ComponentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.components {
		if c.ID == id {
			return c.Status
		}
	}
	f.t.Fatalf("component %d not found", id)
	return 0
}

func (f *fakeCachet) failIncidentCreates(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidentFailures = n
}

func (f *fakeCachet) incidentList() []Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Incident(nil), f.incidents...)
}

func (f *fakeCachet) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeCachet) listComponents(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.components))
	for _, c := range f.components {
		out = append(out, map[string]any{
			"id":   strconv.FormatInt(c.ID, 10),
			"type": "components",
			"attributes": map[string]any{
				"name":   c.Name,
				"status": map[string]any{"value": int(c.Status), "human": c.Status.String()},
			},
		})
	}
	writeData(w, out)
}

func (f *fakeCachet) createComponent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string          `json:"name"`
		Status ComponentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	c := Component{ID: int64(len(f.components) + 1), Name: body.Name, Status: body.Status}
	f.components = append(f.components, c)
	f.mu.Unlock()
	writeData(w, map[string]any{"id": c.ID, "name": c.Name, "status": int(c.Status)})
}

func (f *fakeCachet) updateComponent(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var body struct {
		Status ComponentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.components {
		if f.components[i].ID == id {
			f.components[i].Status = body.Status
			writeData(w, map[string]any{"id": id, "name": f.components[i].Name, "status": int(body.Status)})
			return
		}
	}
	http.NotFound(w, r)
}

func (f *fakeCachet) listIncidents(w http.ResponseWriter, r *http.Request) {
	want := r.URL.Query().Get("component_id")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.incidents))
	for _, inc := range f.incidents {
		if want != "" && fmt.Sprint(inc.ComponentID) != want {
			continue
		}
		out = append(out, map[string]any{
			"id": inc.ID, "name": inc.Name, "message": inc.Message,
			"status": int(inc.Status), "component_id": inc.ComponentID,
		})
	}
	writeData(w, out)
}

func (f *fakeCachet) createIncident(w http.ResponseWriter, r *http.Request) {
	var body NewIncident
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if f.incidentFailures > 0 {
		f.incidentFailures--
		f.mu.Unlock()
		http.Error(w, `{"errors":["database unavailable"]}`, http.StatusInternalServerError)
		return
	}
	inc := Incident{ID: int64(len(f.incidents) + 1), Name: body.Name, Message: body.Message, Status: body.Status, ComponentID: body.ComponentID}
	f.incidents = append(f.incidents, inc)
	f.mu.Unlock()
	writeData(w, map[string]any{"id": inc.ID, "name": inc.Name, "status": int(inc.Status), "component_id": inc.ComponentID})
}

func (f *fakeCachet) updateIncident(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var body struct {
		Status IncidentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.incidents {
		if f.incidents[i].ID == id {
			f.incidents[i].Status = body.Status
			writeData(w, map[string]any{"id": id, "status": int(body.Status)})
			return
		}
	}
	http.NotFound(w, r)
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}
