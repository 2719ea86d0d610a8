package audits

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/hygaudit/internal/render"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

func setupRouter(t *testing.T) (env, http.Handler) {
	t.Helper()
	e := setupService(t)
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	r := chi.NewRouter()
	RegisterRoutes(r, e.svc, renderer)
	return e, r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(ActorHeader, "Sam Reed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuditHTTPFlow(t *testing.T) {
	e, h := setupRouter(t)

	w := do(t, h, http.MethodPost, "/api/audits/", map[string]any{"premise_id": "p-9", "checklist_id": "cl-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	var a Audit
	json.NewDecoder(w.Body).Decode(&a)
	base := "/api/audits/" + a.ID

	if w := do(t, h, http.MethodPost, base+"/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body)
	}

	t.Run("invalid answer", func(t *testing.T) {
		w := do(t, h, http.MethodPut, base+"/answers/A", map[string]any{
			"compliant":           true,
			"non_compliance_data": []map[string]any{{"finding": "x"}},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	do(t, h, http.MethodPut, base+"/answers/A", map[string]any{"compliant": true})
	w = do(t, h, http.MethodPost, base+"/answers/B/records", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("add record status = %d: %s", w.Code, w.Body)
	}
	if w := do(t, h, http.MethodPut, base+"/answers/B/records/0", map[string]any{"finding": "no probe thermometer"}); w.Code != http.StatusOK {
		t.Fatalf("update record status = %d: %s", w.Code, w.Body)
	}

	t.Run("incomplete", func(t *testing.T) {
		w := do(t, h, http.MethodPost, base+"/complete", nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", w.Code)
		}
		var body struct {
			Missing []string `json:"missing"`
		}
		json.NewDecoder(w.Body).Decode(&body)
		if len(body.Missing) != 1 || body.Missing[0] != "C" {
			t.Errorf("missing = %v", body.Missing)
		}
	})

	do(t, h, http.MethodPut, base+"/answers/C", map[string]any{"compliant": true})
	w = do(t, h, http.MethodPost, base+"/complete", map[string]any{"auditor_name": "Sam Reed"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("complete status = %d: %s", w.Code, w.Body)
	}
	var completed struct {
		Audit  Audit          `json:"audit"`
		Report reports.Report `json:"report"`
	}
	json.NewDecoder(w.Body).Decode(&completed)
	if completed.Audit.Status != StatusCompleted || completed.Report.VersionNumber != 1 {
		t.Fatalf("complete response = %+v", completed)
	}
	e.wait(t, completed.Report.ID)

	t.Run("read only", func(t *testing.T) {
		w := do(t, h, http.MethodPut, base+"/answers/A", map[string]any{"compliant": true})
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	t.Run("current and html", func(t *testing.T) {
		w := do(t, h, http.MethodGet, base+"/reports/current", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("current status = %d", w.Code)
		}
		var rep reports.Report
		json.NewDecoder(w.Body).Decode(&rep)
		if rep.ID != completed.Report.ID || !rep.IsLatest {
			t.Errorf("current = %+v", rep)
		}

		w = do(t, h, http.MethodGet, base+"/reports/"+rep.ID+"/html", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("html status = %d", w.Code)
		}
		if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			t.Errorf("content type = %q", w.Header().Get("Content-Type"))
		}
		if !strings.Contains(w.Body.String(), "Report v1") {
			t.Errorf("html body missing report content")
		}
	})

	t.Run("cancel finished", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/reports/"+completed.Report.ID+"/cancel", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	if w := do(t, h, http.MethodPost, base+"/unlock", nil); w.Code != http.StatusOK {
		t.Fatalf("unlock status = %d", w.Code)
	}
	w = do(t, h, http.MethodPost, base+"/complete", nil)
	json.NewDecoder(w.Body).Decode(&completed)
	e.wait(t, completed.Report.ID)

	t.Run("versions", func(t *testing.T) {
		w := do(t, h, http.MethodGet, base+"/reports", nil)
		var versions []reports.Report
		json.NewDecoder(w.Body).Decode(&versions)
		if len(versions) != 2 || versions[0].VersionNumber != 2 || versions[1].VersionNumber != 1 {
			t.Fatalf("versions = %+v", versions)
		}

		w = do(t, h, http.MethodPost, base+"/reports/"+versions[1].ID+"/latest", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("latest status = %d: %s", w.Code, w.Body)
		}

		w = do(t, h, http.MethodDelete, base+"/reports/"+versions[1].ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delete status = %d: %s", w.Code, w.Body)
		}
		var deleted struct {
			Promoted *reports.Report `json:"promoted"`
		}
		json.NewDecoder(w.Body).Decode(&deleted)
		if deleted.Promoted == nil || deleted.Promoted.VersionNumber != 2 {
			t.Errorf("promoted = %+v", deleted.Promoted)
		}

		w = do(t, h, http.MethodDelete, base+"/reports/"+versions[1].ID, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d, want 404", w.Code)
		}
	})
}

func TestCompleteChunkedBody(t *testing.T) {
	e, h := setupRouter(t)
	a := e.newAudit(t)

	body := io.MultiReader(strings.NewReader(`{"auditor_name":`), strings.NewReader(`"Dana Cole"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/audits/"+a.ID+"/complete", body)
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set(ActorHeader, "Sam Reed")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("complete status = %d: %s", w.Code, w.Body)
	}

	var completed struct {
		Report reports.Report `json:"report"`
	}
	json.NewDecoder(w.Body).Decode(&completed)
	if completed.Report.CreatedByName != "Dana Cole" {
		t.Errorf("created_by_name = %q, want the name from the chunked body", completed.Report.CreatedByName)
	}
	e.wait(t, completed.Report.ID)

	t.Run("empty chunked body", func(t *testing.T) {
		b := e.newAudit(t)
		req := httptest.NewRequest(http.MethodPost, "/api/audits/"+b.ID+"/complete", io.MultiReader())
		req.ContentLength = -1
		req.Header.Set(ActorHeader, "Sam Reed")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		var completed struct {
			Report reports.Report `json:"report"`
		}
		json.NewDecoder(w.Body).Decode(&completed)
		if completed.Report.CreatedByName != "Sam Reed" {
			t.Errorf("created_by_name = %q, want the actor header", completed.Report.CreatedByName)
		}
		e.wait(t, completed.Report.ID)
	})
}

func TestAuditHTTPNotFound(t *testing.T) {
	_, h := setupRouter(t)

	for _, path := range []string{"/api/audits/nope", "/api/audits/nope/reports", "/api/audits/nope/reports/current"} {
		if w := do(t, h, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}
	if w := do(t, h, http.MethodPost, "/api/reports/nope/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel status = %d, want 404", w.Code)
	}
}

func TestAuditHTTPList(t *testing.T) {
	e, h := setupRouter(t)
	e.newAudit(t)
	e.newAudit(t)

	w := do(t, h, http.MethodGet, "/api/audits/?status=in_progress", nil)
	var list []Audit
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 2 {
		t.Errorf("list = %d, want 2", len(list))
	}

	w = do(t, h, http.MethodGet, "/api/audits/?status=locked", nil)
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 0 {
		t.Errorf("locked list = %d, want 0", len(list))
	}
}
