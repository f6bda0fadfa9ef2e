package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-gateway/internal/i18n"
	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/upstream"
)

const (
	chatMaxMessageLen = 500
	chatMaxHistory    = 5
	chatSourceTag     = "website-chatbot"
)

var (
	rateLimitMsg = i18n.ErrorMessage(i18n.ClassRateLimit)
	serverErrMsg = i18n.ErrorMessage(i18n.ClassServerError)
	timeoutMsg   = i18n.ErrorMessage(i18n.ClassTimeout)
	connectMsg   = i18n.Bilingual{
		JA: "AIサービスに接続できません。しばらくしてからもう一度お試しください。",
		EN: "Cannot reach the AI service. Please try again later.",
	}
	notConfiguredMsg = i18n.Bilingual{
		JA: "AIサービスが設定されていません。",
		EN: "AI service is not configured.",
	}
)

type chatRequest struct {
	Message   string          `json:"message"`
	Language  string          `json:"language"`
	SessionID string          `json:"sessionId"`
	History   json.RawMessage `json:"history"`
}

type chatHistEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatForward is what actually leaves for the webhook: the sanitized request
// plus a server timestamp and a fixed source tag.
type chatForward struct {
	Message   string          `json:"message"`
	Language  string          `json:"language"`
	SessionID string          `json:"sessionId"`
	History   []chatHistEntry `json:"history,omitempty"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
}

// ChatHandler proxies chatbot messages to the workflow webhook. It holds no
// per-request state; the limiter is injected so tests construct their own.
type ChatHandler struct {
	limiter   *ratelimit.WindowLimiter
	forwarder *upstream.Forwarder
	now       func() time.Time
}

func NewChatHandler(limiter *ratelimit.WindowLimiter, forwarder *upstream.Forwarder) *ChatHandler {
	return &ChatHandler{limiter: limiter, forwarder: forwarder, now: time.Now}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json", "message": "could not read request body"})
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json", "message": "request body is not valid JSON"})
		return
	}

	hist, reason := validateChat(&req)
	if reason != "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_error", "message": reason})
		return
	}

	ip := clientIP(r)
	if ok, retry := h.limiter.AdmitWithRetry(ip); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   "rate_limit_exceeded",
			"message": rateLimitMsg,
		})
		return
	}

	fwd := chatForward{
		Message:   req.Message,
		Language:  req.Language,
		SessionID: req.SessionID,
		History:   hist,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Source:    chatSourceTag,
	}

	reply, err := h.forwarder.ForwardJSON(r.Context(), fwd)
	if err != nil {
		h.respondUpstreamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

// validateChat sanitizes req in place and returns the truncated history
// plus a human-readable reason on the first violation.
func validateChat(req *chatRequest) ([]chatHistEntry, string) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, "message is required"
	}
	if len([]rune(req.Message)) > chatMaxMessageLen {
		return nil, fmt.Sprintf("message exceeds %d characters", chatMaxMessageLen)
	}
	if !i18n.Language(req.Language).Valid() {
		return nil, "language must be \"ja\" or \"en\""
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, "sessionId is required"
	}
	return parseHistory(req.History)
}

// parseHistory keeps history violations on the validation_error path rather
// than failing the top-level JSON decode: role and content are decoded per
// entry so a wrong type names the offending field. Empty content is allowed.
func parseHistory(raw json.RawMessage) ([]chatHistEntry, string) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ""
	}
	var entries []struct {
		Role    json.RawMessage `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, "history must be an array of {role, content} objects"
	}
	if len(entries) > chatMaxHistory {
		entries = entries[len(entries)-chatMaxHistory:]
	}
	out := make([]chatHistEntry, 0, len(entries))
	for i, e := range entries {
		var entry chatHistEntry
		if err := json.Unmarshal(e.Role, &entry.Role); err != nil || (entry.Role != "user" && entry.Role != "assistant") {
			return nil, fmt.Sprintf("history[%d].role must be \"user\" or \"assistant\"", i)
		}
		if err := json.Unmarshal(e.Content, &entry.Content); err != nil {
			return nil, fmt.Sprintf("history[%d].content must be a string", i)
		}
		out = append(out, entry)
	}
	return out, ""
}

func (h *ChatHandler) respondUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		// Operator misconfiguration, not a transient failure; logged
		// distinctly so "fix the deployment" is visible in one line.
		log.Printf("chat proxy misconfigured: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "server_error",
			"message": notConfiguredMsg,
		})
	case errors.Is(err, upstream.ErrTimeout):
		respondJSON(w, http.StatusGatewayTimeout, map[string]any{
			"error":   "upstream_timeout",
			"message": timeoutMsg,
		})
	case errors.Is(err, upstream.ErrBadUpstreamBody):
		log.Printf("chat upstream returned unparseable body")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "server_error",
			"message": i18n.Bilingual{JA: "AIサービスから無効な応答が返されました。", EN: "Invalid response from AI service."},
		})
	case errors.As(err, &statusErr):
		log.Printf("chat upstream rejected request: status %d", statusErr.Code)
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":   fmt.Sprintf("upstream_status_%d", statusErr.Code),
			"message": serverErrMsg,
		})
	default:
		log.Printf("chat upstream connect error: %v", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "upstream_unreachable",
			"message": connectMsg,
		})
	}
}
