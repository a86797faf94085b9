package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/entitext/internal/annotation"
	"github.com/ajitpratap0/entitext/internal/api"
	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/store"
)

// newTestServer creates a test HTTP server backed by a MemoryStore.
func newTestServer(t *testing.T, authToken string) (*httptest.Server, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemoryStore()
	srv := api.NewServer(catalog.NewService(st, nil, logger, 0), annotation.NewEngine(st, logger), logger, authToken)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

type client struct {
	t        *testing.T
	base     string
	token    string
	identity string
}

// do sends a request and decodes the JSON response into a generic map.
func (c client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		buf = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.identity != "" {
		req.Header.Set(api.IdentityHeader, c.identity)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// mustCreate posts body to path, requires 201 and returns the new id.
func (c client) mustCreate(path string, body any) string {
	c.t.Helper()
	status, out := c.do(http.MethodPost, path, body)
	require.Equal(c.t, http.StatusCreated, status, "%v", out)
	id, ok := out["id"].(string)
	require.True(c.t, ok)
	return id
}

var personSchema = []map[string]any{
	{"name": "display_name", "label": "Name", "type": "text", "required": true},
	{"name": "born", "label": "Born", "type": "date"},
	{"name": "home", "label": "Home", "type": "latlong"},
}

type world struct {
	c         client
	projectID string
	typeID    string
	entityID  string
	pageID    string
}

func newWorld(t *testing.T) world {
	t.Helper()
	ts, _ := newTestServer(t, "")
	c := client{t: t, base: ts.URL, identity: "ada"}

	w := world{c: c}
	w.projectID = c.mustCreate("/api/projects", map[string]any{"title": "Letters"})
	w.typeID = c.mustCreate("/api/projects/"+w.projectID+"/entity-types", map[string]any{
		"name": "Person", "color": "#ff0000", "schema": personSchema,
	})
	w.entityID = c.mustCreate("/api/projects/"+w.projectID+"/entities", map[string]any{
		"entity_type_id": w.typeID,
		"metadata":       map[string]any{"display_name": "Fox"},
	})
	docID := c.mustCreate("/api/projects/"+w.projectID+"/documents", map[string]any{"title": "Fables"})

	status, out := c.do(http.MethodPost, "/api/documents/"+docID+"/pages", map[string]any{
		"pages": []map[string]any{{"title": "p1", "text": "The quick fox"}},
	})
	require.Equal(t, http.StatusCreated, status)
	pages := out["pages"].([]any)
	require.Len(t, pages, 1)
	w.pageID = pages[0].(map[string]any)["id"].(string)
	return w
}

func TestAPI_Healthz(t *testing.T) {
	ts, _ := newTestServer(t, "")
	status, out := client{t: t, base: ts.URL}.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
}

func TestAPI_ProjectsScopedToIdentity(t *testing.T) {
	ts, _ := newTestServer(t, "")
	ada := client{t: t, base: ts.URL, identity: "ada"}
	bob := client{t: t, base: ts.URL, identity: "bob"}

	ada.mustCreate("/api/projects", map[string]any{"title": "Letters"})

	_, out := ada.do(http.MethodGet, "/api/projects", nil)
	assert.Len(t, out["projects"], 1)

	_, out = bob.do(http.MethodGet, "/api/projects", nil)
	assert.Empty(t, out["projects"])

	status, _ := ada.do(http.MethodPost, "/api/projects", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_ListEntityTypes(t *testing.T) {
	w := newWorld(t)

	status, out := w.c.do(http.MethodGet, "/api/projects/"+w.projectID+"/entity-types", nil)
	require.Equal(t, http.StatusOK, status)
	types := out["entity_types"].([]any)
	require.Len(t, types, 1)
	et := types[0].(map[string]any)
	assert.Equal(t, w.typeID, et["id"])
	assert.Equal(t, "Person", et["name"])
	assert.Equal(t, "#ff0000", et["color"])
	assert.Len(t, et["schema"], 3)

	status, _ = w.c.do(http.MethodGet, "/api/projects/"+store.NewID()+"/entity-types", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_CreateEntityType_Errors(t *testing.T) {
	w := newWorld(t)
	path := "/api/projects/" + w.projectID + "/entity-types"

	status, out := w.c.do(http.MethodPost, path, map[string]any{
		"name": "Place", "schema": []map[string]any{{"name": "title", "label": "Title", "type": "text"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["error"], "display_name")

	status, _ = w.c.do(http.MethodPost, path, map[string]any{"name": "Place", "schema": "not a list"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = w.c.do(http.MethodPost, path, map[string]any{"name": "Person", "schema": personSchema})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = w.c.do(http.MethodDelete, "/api/entity-types/"+w.typeID, nil)
	assert.Equal(t, http.StatusConflict, status, "entities still use it")
}

func TestAPI_UpdateEntityType(t *testing.T) {
	w := newWorld(t)

	status, out := w.c.do(http.MethodPut, "/api/entity-types/"+w.typeID, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["is_active"])
	assert.Equal(t, "Person", out["name"])

	_, out = w.c.do(http.MethodGet, "/api/projects/"+w.projectID+"/entity-types", nil)
	assert.Empty(t, out["entity_types"])
}

func TestAPI_CreateEntity(t *testing.T) {
	w := newWorld(t)
	path := "/api/projects/" + w.projectID + "/entities"

	status, out := w.c.do(http.MethodPost, path, map[string]any{
		"entity_type_id": w.typeID,
		"metadata": map[string]any{
			"display_name": "Ada Lovelace",
			"born":         map[string]any{"iso": "1815-12-10", "precision": "day", "original": "10 Dec 1815"},
			"home":         map[string]any{"lat": 51.5, "long": -0.12},
		},
	})
	require.Equal(t, http.StatusCreated, status, "%v", out)
	assert.Equal(t, "Ada Lovelace", out["display_name"])
	assert.Equal(t, w.typeID, out["entity_type_id"])
	assert.Equal(t, "Person", out["entity_type_name"])
	assert.Equal(t, "#ff0000", out["entity_type_color"])

	status, out = w.c.do(http.MethodPost, path, map[string]any{
		"entity_type_id": w.typeID,
		"metadata": map[string]any{
			"born": map[string]any{"iso": "2024-13-40", "precision": "day"},
			"home": map[string]any{"lat": 91, "long": 0},
		},
	})
	require.Equal(t, http.StatusBadRequest, status)
	fields := out["fields"].(map[string]any)
	assert.Len(t, fields, 3)
	assert.Contains(t, fields, "display_name")
	assert.Contains(t, fields, "born")
	assert.Contains(t, fields, "home")

	status, _ = w.c.do(http.MethodPost, path, map[string]any{"entity_type_id": store.NewID(), "metadata": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, status)

	status, out = w.c.do(http.MethodPost, path, map[string]any{"metadata": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "entity_type_id is required.", out["error"])

	status, _ = w.c.do(http.MethodPost, path, "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_UpdateEntity(t *testing.T) {
	w := newWorld(t)

	status, out := w.c.do(http.MethodPut, "/api/entities/"+w.entityID, map[string]any{
		"metadata": map[string]any{"display_name": "Red Fox"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Red Fox", out["display_name"])

	status, out = w.c.do(http.MethodPut, "/api/entities/"+w.entityID, map[string]any{
		"metadata": map[string]any{"display_name": ""},
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"display_name": "display name is required"}, out["fields"])

	status, _ = w.c.do(http.MethodPut, "/api/entities/"+store.NewID(), map[string]any{"metadata": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_SearchEntities(t *testing.T) {
	w := newWorld(t)
	path := "/api/projects/" + w.projectID + "/entities"
	for i := 0; i < 22; i++ {
		w.c.mustCreate(path, map[string]any{
			"entity_type_id": w.typeID,
			"metadata":       map[string]any{"display_name": fmt.Sprintf("Foxglove %d", i)},
		})
	}

	status, out := w.c.do(http.MethodGet, path+"?q=fox", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["entities"], 20)

	_, out = w.c.do(http.MethodGet, path+"?q=", nil)
	assert.Empty(t, out["entities"])

	_, out = w.c.do(http.MethodGet, path+"?q=FOXGLOVE%2021&type_id="+w.typeID, nil)
	entities := out["entities"].([]any)
	require.Len(t, entities, 1)
	assert.Equal(t, "Foxglove 21", entities[0].(map[string]any)["display_name"])
}

func TestAPI_Annotations(t *testing.T) {
	w := newWorld(t)
	path := "/api/pages/" + w.pageID + "/annotations"

	status, out := w.c.do(http.MethodPost, path, map[string]any{"entity_id": w.entityID, "start_offset": 4, "end_offset": 9})
	require.Equal(t, http.StatusCreated, status, "%v", out)
	assert.Equal(t, "quick", out["annotated_text"])
	assert.Equal(t, "Fox", out["entity_display_name"])
	annID := out["id"].(string)

	w.c.mustCreate(path, map[string]any{"entity_id": w.entityID, "start_offset": 0, "end_offset": 3})

	bad := []struct {
		name   string
		body   any
		status int
	}{
		{"reversed offsets", map[string]any{"entity_id": w.entityID, "start_offset": 9, "end_offset": 4}, http.StatusBadRequest},
		{"out of range", map[string]any{"entity_id": w.entityID, "start_offset": 100, "end_offset": 110}, http.StatusBadRequest},
		{"missing fields", map[string]any{"entity_id": w.entityID}, http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
		{"unknown entity", map[string]any{"entity_id": store.NewID(), "start_offset": 0, "end_offset": 3}, http.StatusNotFound},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := w.c.do(http.MethodPost, path, tc.body)
			assert.Equal(t, tc.status, status)
		})
	}

	status, out = w.c.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	anns := out["annotations"].([]any)
	require.Len(t, anns, 2)
	assert.Equal(t, float64(0), anns[0].(map[string]any)["start_offset"])
	assert.Equal(t, float64(4), anns[1].(map[string]any)["start_offset"])

	status, _ = w.c.do(http.MethodDelete, "/api/entities/"+w.entityID, nil)
	assert.Equal(t, http.StatusConflict, status, "annotated entities are protected")

	status, out = w.c.do(http.MethodDelete, "/api/annotations/"+annID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["deleted"])

	status, _ = w.c.do(http.MethodDelete, "/api/annotations/"+annID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_PageTextEdit(t *testing.T) {
	w := newWorld(t)
	annID := w.c.mustCreate("/api/pages/"+w.pageID+"/annotations", map[string]any{"entity_id": w.entityID, "start_offset": 4, "end_offset": 9})

	status, out := w.c.do(http.MethodPut, "/api/pages/"+w.pageID+"/text", map[string]any{"text": "The slow fox"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["saved"])
	inv := out["invalidated_annotations"].([]any)
	require.Len(t, inv, 1)
	assert.Equal(t, annID, inv[0].(map[string]any)["id"])
	assert.Equal(t, "quick", inv[0].(map[string]any)["annotated_text"])
	assert.Equal(t, "Person", inv[0].(map[string]any)["entity_type_name"])

	_, out = w.c.do(http.MethodGet, "/api/pages/"+w.pageID+"/annotations", nil)
	anns := out["annotations"].([]any)
	require.Len(t, anns, 1)
	assert.Equal(t, "quick", anns[0].(map[string]any)["annotated_text"])
	assert.Equal(t, true, anns[0].(map[string]any)["drifted"])

	status, out = w.c.do(http.MethodPut, "/api/pages/"+w.pageID+"/text", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "'text' is required.", out["error"])

	status, _ = w.c.do(http.MethodPut, "/api/pages/"+store.NewID()+"/text", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Auth(t *testing.T) {
	ts, _ := newTestServer(t, "secret-token")

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/projects"},
		{http.MethodGet, "/api/projects/x/entity-types"},
		{http.MethodGet, "/api/projects/x/entities?q=a"},
		{http.MethodPost, "/api/pages/x/annotations"},
		{http.MethodDelete, "/api/annotations/x"},
		{http.MethodPut, "/api/pages/x/text"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			status, _ := client{t: t, base: ts.URL}.do(ep.method, ep.path, map[string]any{})
			assert.Equal(t, http.StatusUnauthorized, status)

			status, _ = client{t: t, base: ts.URL, token: "wrong"}.do(ep.method, ep.path, map[string]any{})
			assert.Equal(t, http.StatusUnauthorized, status)
		})
	}

	status, _ := client{t: t, base: ts.URL, token: "secret-token"}.do(http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusOK, status)
}
