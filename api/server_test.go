package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"snake-sim/game/config"
	"snake-sim/game/manager"
	"snake-sim/game/types"
	"snake-sim/store"
)

func testServer(t *testing.T, withStore bool) http.Handler {
	t.Helper()
	var opts []Option
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatal(err)
		}
		if err := st.Migrate(); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { st.Close() })
		opts = append(opts, WithStore(st))
	}
	return NewServer(config.Default(), opts...).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, testServer(t, false), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateRun(t *testing.T) {
	h := testServer(t, true)
	rec := do(t, h, http.MethodPost, "/api/v1/runs", `{"seed": 42, "script": "UU"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	var run store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Seed != 42 || run.Moves != 2 || !run.GameOver || run.Cause != manager.WallCollision {
		t.Fatalf("run = %+v", run)
	}
	if types.FormatScript(run.History) != "UU" || run.Script != "UU" {
		t.Fatalf("history %v script %q", run.History, run.Script)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+run.RunID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d body=%s", rec.Code, rec.Body)
	}
	var archived store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &archived); err != nil {
		t.Fatal(err)
	}
	if archived.RunID != run.RunID || archived.Score != run.Score {
		t.Fatalf("archived = %+v", archived)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs?limit=5", "")
	var list struct {
		Runs []store.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 1 {
		t.Fatalf("listed %d runs", len(list.Runs))
	}
}

func TestSameSeedSameRun(t *testing.T) {
	h := testServer(t, false)
	body := `{"seed": "18446744073709551615", "script": "R,R,D,D,L"}`
	a := do(t, h, http.MethodPost, "/api/v1/runs", body)
	b := do(t, h, http.MethodPost, "/api/v1/runs", body)
	if a.Code != http.StatusCreated || b.Code != http.StatusCreated {
		t.Fatalf("status %d/%d: %s", a.Code, b.Code, a.Body)
	}

	var ra, rb store.Run
	json.Unmarshal(a.Body.Bytes(), &ra)
	json.Unmarshal(b.Body.Bytes(), &rb)
	if ra.Seed != 18446744073709551615 || ra.Score != rb.Score || ra.Moves != rb.Moves {
		t.Fatalf("runs differ: %+v vs %+v", ra, rb)
	}
}

func TestCreateRunWithJS(t *testing.T) {
	h := testServer(t, false)
	body := `{"seed": 1, "js": "function nextDirection(s, tick) { return 'UP'; }"}`
	rec := do(t, h, http.MethodPost, "/api/v1/runs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var run store.Run
	json.Unmarshal(rec.Body.Bytes(), &run)
	if run.Moves != 2 || run.Cause != manager.WallCollision {
		t.Fatalf("run = %+v", run)
	}
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	h := testServer(t, false)
	tests := []struct {
		name string
		body string
	}{
		{"negative seed", `{"seed": -1}`},
		{"fractional seed", `{"seed": 1.5}`},
		{"text seed", `{"seed": "abc"}`},
		{"bad script", `{"seed": 1, "script": "UXD"}`},
		{"bad js", `{"js": "var x = 1;"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/runs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestArchiveEndpoints(t *testing.T) {
	if rec := do(t, testServer(t, false), http.MethodGet, "/api/v1/runs", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("list without store = %d", rec.Code)
	}
	h := testServer(t, true)
	if rec := do(t, h, http.MethodGet, "/api/v1/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/runs?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}
}
