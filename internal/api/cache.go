package api

import "net/http"

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.CacheAdmin == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "cache is not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.CacheAdmin.Stats())
}

func handleCacheClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.CacheAdmin == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "cache is not configured", false, nil)
		return
	}
	if err := requireRole(r, "admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	deps.CacheAdmin.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
