// Package proxy implements the two stateless HTTP handlers that validate
// inbound payloads, rate-limit by caller IP, and forward to the workflow
// webhook.
package proxy

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// clientIP extracts the caller identity: first X-Forwarded-For entry,
// trimmed, falling back to a shared "unknown" bucket.
func clientIP(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return "unknown"
	}
	ip := strings.TrimSpace(strings.Split(fwd, ",")[0])
	if ip == "" {
		return "unknown"
	}
	return ip
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
