package api

import (
	"net/http"

	"github.com/askdb/askdb/internal/schema"
)

type tablesResponse struct {
	Tables []schema.Table `json:"tables"`
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tables, err := deps.Catalog.Tables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load tables", true, map[string]any{"details": err.Error()})
		return
	}
	if tables == nil {
		tables = []schema.Table{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Tables: tables})
}
