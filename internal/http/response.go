package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, ErrorResponse{Error: err.Error()})
}

func respondErrorWithLog(w http.ResponseWriter, r *http.Request, status int, err error, context string) {
	reqID := middleware.GetReqID(r.Context())
	log.Printf("[ERROR] [%s] %s %s failed (%s): %v", reqID, r.Method, r.URL.Path, context, err)
	respondError(w, status, err)
}

// respondRaw writes an already-encoded JSON body through untouched.
func respondRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
