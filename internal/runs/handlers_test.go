package runs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"
)

type memoryReader struct {
	runs map[string]Run
	err  error
}

func (m memoryReader) Get(_ context.Context, id string) (Run, error) {
	if m.err != nil {
		return Run{}, m.err
	}
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m memoryReader) ListBySession(_ context.Context, sessionID string) ([]Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Run
	for _, r := range m.runs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newRunsApp(reader Reader) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/runs"), reader)
	return app
}

func TestRunsHandlers(t *testing.T) {
	run := sampleRun()
	app := newRunsApp(memoryReader{runs: map[string]Run{run.ID: run}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get run status: %v", err)
	}
	var got Run
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil || got.ID != "run-1" {
		t.Fatalf("decode run: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/session/session-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var list []Run
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("decode list: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/session/nobody", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("empty list status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestRunsGeoJSON(t *testing.T) {
	run := sampleRun()
	app := newRunsApp(memoryReader{runs: map[string]Run{run.ID: run}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1/geojson", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("geojson status: %v", err)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/geo+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("decode geojson: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected route and top speed features, got %d", len(fc.Features))
	}
	if fc.Features[0].Geometry.GeoJSONType() != "LineString" {
		t.Fatalf("expected line string, got %s", fc.Features[0].Geometry.GeoJSONType())
	}
	if fc.Features[1].Properties.MustFloat64("speed_mps", 0) != 11 {
		t.Fatalf("unexpected top speed props: %v", fc.Features[1].Properties)
	}
}

func TestRunsHandlersErrors(t *testing.T) {
	app := newRunsApp(memoryReader{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found")
	}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/missing/geojson", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found")
	}

	app = newRunsApp(memoryReader{err: errStore})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/session/session-1", nil))
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected error status")
	}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected error status")
	}
}
