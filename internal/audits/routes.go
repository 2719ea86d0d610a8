package audits

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/generation"
	"github.com/ziadkadry99/hygaudit/internal/render"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

// ActorHeader names the person performing a request.
const ActorHeader = "X-Auditor-Name"

// RegisterRoutes mounts audit and report endpoints on the given router.
func RegisterRoutes(r chi.Router, svc *Service, renderer *render.Renderer) {
	r.Route("/api/audits", func(r chi.Router) {
		r.Use(actorMiddleware)
		r.Get("/", handleList(svc))
		r.Post("/", handleCreate(svc))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGet(svc))
			r.Post("/start", handleLifecycle(svc.StartAudit))
			r.Post("/complete", handleComplete(svc))
			r.Post("/unlock", handleLifecycle(svc.Unlock))
			r.Post("/lock", handleLifecycle(svc.Lock))
			r.Post("/revise", handleLifecycle(svc.Revise))
			r.Post("/save", handleLifecycle(svc.SaveProgress))
			r.Put("/headers", handleSetHeaders(svc))

			r.Put("/answers/{itemID}", handleSetAnswer(svc))
			r.Post("/answers/{itemID}/records", handleAddRecord(svc))
			r.Put("/answers/{itemID}/records/{index}", handleUpdateRecord(svc))
			r.Delete("/answers/{itemID}/records/{index}", handleRemoveRecord(svc))

			registerReportRoutes(r, svc, renderer)
		})
	})

	r.Route("/api/reports", func(r chi.Router) {
		r.Use(actorMiddleware)
		r.Post("/{reportID}/cancel", handleCancelReport(svc))
	})
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := r.Header.Get(ActorHeader); name != "" {
			r = r.WithContext(WithActor(r.Context(), name))
		}
		next.ServeHTTP(w, r)
	})
}

func handleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			PremiseID: q.Get("premise_id"),
			Status:    Status(q.Get("status")),
		}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Offset, _ = strconv.Atoi(q.Get("offset"))

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []Audit{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a Audit
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if a.PremiseID == "" {
			http.Error(w, "premise_id is required", http.StatusBadRequest)
			return
		}
		created, err := svc.Create(r.Context(), a)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleLifecycle(op func(ctx context.Context, id string) (*Audit, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleComplete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AuditorName string `json:"auditor_name"`
		}
		// The body is optional and may arrive chunked.
		if r.Body != nil && r.Body != http.NoBody {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		a, rep, err := svc.CompleteAudit(r.Context(), chi.URLParam(r, "id"), CompleteOptions{AuditorName: body.AuditorName})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"audit": a, "report": rep})
	}
}

func handleSetHeaders(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		a, err := svc.SetHeaderValues(r.Context(), chi.URLParam(r, "id"), values)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleSetAnswer(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a answers.AuditAnswer
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id, itemID := chi.URLParam(r, "id"), chi.URLParam(r, "itemID")
		if err := svc.SetAnswer(r.Context(), id, itemID, a); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleAddRecord(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := svc.AddNonCompliance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"index": index})
	}
}

func handleUpdateRecord(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid record index", http.StatusBadRequest)
			return
		}
		var rec answers.NonComplianceRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := svc.UpdateNonCompliance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), index, rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleRemoveRecord(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid record index", http.StatusBadRequest)
			return
		}
		if err := svc.RemoveNonCompliance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), index); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, answers.ErrUnknownAudit),
		errors.Is(err, answers.ErrRecordNotFound),
		errors.Is(err, checklist.ErrNotFound),
		errors.Is(err, reports.ErrVersionNotFound),
		errors.Is(err, reports.ErrNoCurrent):
		return http.StatusNotFound
	case errors.Is(err, answers.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, ErrIncompleteAudit),
		errors.Is(err, ErrNoChecklist):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrReadOnly),
		errors.Is(err, generation.ErrGenerationInProgress),
		errors.Is(err, generation.ErrJobFinished),
		errors.Is(err, reports.ErrVersionBusy),
		errors.Is(err, reports.ErrNotDone):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var incomplete *IncompleteAuditError
	if errors.As(err, &incomplete) {
		body["missing"] = incomplete.Missing
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
