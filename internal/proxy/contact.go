package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/upstream"
)

const (
	contactDefaultSource = "website-contact-form"
	contactMaxMessageLen = 2000
)

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// allowedSources whitelists the tag recorded downstream; anything else
// collapses to the default so callers cannot inject arbitrary tags.
var allowedSources = map[string]bool{
	"website-contact-form": true,
	"website-chatbot":      true,
	"website-footer":       true,
}

type contactRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
	Service  string `json:"service"`
	Message  string `json:"message"`
	Consent  bool   `json:"consent"`
	Language string `json:"language"`
	Source   string `json:"source"`

	// Legacy field names still arriving from older cached pages.
	Firstname   string `json:"firstname"`
	ProjectType string `json:"projectType"`
}

type contactForward struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
	Consent   bool   `json:"consent"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// ContactHandler proxies contact-form submissions with its own field set and
// a much slower per-IP window than the chat proxy.
type ContactHandler struct {
	limiter   *ratelimit.WindowLimiter
	forwarder *upstream.Forwarder
	now       func() time.Time
}

func NewContactHandler(limiter *ratelimit.WindowLimiter, forwarder *upstream.Forwarder) *ContactHandler {
	return &ContactHandler{limiter: limiter, forwarder: forwarder, now: time.Now}
}

func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "details": []string{"could not read request body"}})
		return
	}
	var req contactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "details": []string{"request body is not valid JSON"}})
		return
	}

	normalizeContact(&req)
	if details := validateContact(&req); len(details) > 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "details": details})
		return
	}

	ip := clientIP(r)
	if ok, retry := h.limiter.AdmitWithRetry(ip); !ok {
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "Too many requests",
			"retryAfter": retry,
		})
		return
	}

	fwd := contactForward{
		Name:      req.Name,
		Email:     req.Email,
		Company:   req.Company,
		Phone:     req.Phone,
		Service:   req.Service,
		Message:   req.Message,
		Consent:   req.Consent,
		Language:  req.Language,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Source:    req.Source,
	}

	if _, err := h.forwarder.Forward(r.Context(), fwd); err != nil {
		h.respondForwardError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Thank you for your inquiry. We will get back to you shortly.",
	})
}

// normalizeContact maps legacy aliases, trims and caps every string field,
// lowercases the email, and whitelists the source tag.
func normalizeContact(req *contactRequest) {
	if req.Name == "" && req.Firstname != "" {
		req.Name = req.Firstname
	}
	if req.Service == "" && req.ProjectType != "" {
		req.Service = req.ProjectType
	}

	req.Name = capLen(strings.TrimSpace(req.Name), 100)
	req.Email = strings.ToLower(capLen(strings.TrimSpace(req.Email), 254))
	req.Company = capLen(strings.TrimSpace(req.Company), 200)
	req.Phone = capLen(strings.TrimSpace(req.Phone), 50)
	req.Service = capLen(strings.TrimSpace(req.Service), 100)
	req.Message = capLen(strings.TrimSpace(req.Message), contactMaxMessageLen)

	if req.Language != "ja" && req.Language != "en" {
		req.Language = "ja"
	}
	if !allowedSources[req.Source] {
		req.Source = contactDefaultSource
	}
}

func validateContact(req *contactRequest) []string {
	var details []string
	if req.Name == "" {
		details = append(details, "name is required")
	}
	if req.Email == "" {
		details = append(details, "email is required")
	} else if !emailShape.MatchString(req.Email) {
		details = append(details, "email is not a valid address")
	}
	if req.Message == "" {
		details = append(details, "message is required")
	}
	if !req.Consent {
		details = append(details, "consent is required")
	}
	return details
}

func capLen(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

func (h *ContactHandler) respondForwardError(w http.ResponseWriter, err error) {
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		log.Printf("contact proxy misconfigured: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server configuration error"})
	case errors.Is(err, upstream.ErrTimeout):
		respondJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "Upstream request timed out"})
	case errors.As(err, &statusErr):
		// Pass the upstream status through so the client sees what the
		// automation backend decided.
		log.Printf("contact upstream rejected request: status %d", statusErr.Code)
		respondJSON(w, statusErr.Code, map[string]string{"error": fmt.Sprintf("Upstream returned status %d", statusErr.Code)})
	default:
		log.Printf("contact upstream connect error: %v", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Could not reach upstream service"})
	}
}
