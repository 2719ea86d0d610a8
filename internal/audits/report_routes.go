package audits

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/hygaudit/internal/render"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

// registerReportRoutes mounts the version endpoints of one audit.
func registerReportRoutes(r chi.Router, svc *Service, renderer *render.Renderer) {
	r.Get("/reports", handleListVersions(svc))
	r.Get("/reports/current", handleCurrentReport(svc))
	r.Get("/reports/{reportID}", handleGetReport(svc))
	r.Get("/reports/{reportID}/html", handleReportHTML(svc, renderer))
	r.Delete("/reports/{reportID}", handleDeleteReport(svc))
	r.Post("/reports/{reportID}/latest", handleSetLatest(svc))
}

func handleListVersions(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := svc.ListVersions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if versions == nil {
			versions = []reports.Report{}
		}
		writeJSON(w, http.StatusOK, versions)
	}
}

func handleCurrentReport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.CurrentReport(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleGetReport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.GetReport(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reportID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleReportHTML(svc *Service, renderer *render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.GetReport(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reportID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rep.Status != reports.StatusDone {
			writeError(w, fmt.Errorf("%w: %s is %s", reports.ErrNotDone, rep.ID, rep.Status))
			return
		}

		doc := render.Document{
			AuditID:       rep.AuditID,
			VersionNumber: rep.VersionNumber,
			IsLatest:      rep.IsLatest,
			CreatedAt:     rep.CreatedAt,
			Markdown:      rep.ReportData,
		}
		if p := rep.AuditorSnapshot; p != nil {
			doc.AuditorName, doc.AuditorFirm = p.Name, p.Company
		}
		page, err := renderer.Page(doc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

func handleDeleteReport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		promoted, err := svc.DeleteReportVersion(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reportID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": chi.URLParam(r, "reportID"), "promoted": promoted})
	}
}

func handleSetLatest(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.SetReportAsLatest(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reportID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleCancelReport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.CancelReport(r.Context(), chi.URLParam(r, "reportID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
