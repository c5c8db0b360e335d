package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"pokebridge/internal"
)

const defaultMaxBodyBytes = 1 << 20

// HandlerConfig wires the ingestion endpoint to the rest of the pipeline. An
// empty Secret disables signature verification; every accepted request is then
// counted as unauthenticated.
type HandlerConfig struct {
	Secret       string
	IncludeDiff  bool
	MaxBodyBytes int64
	Enricher     *internal.Enricher
	Filter       *internal.FilterEngine
	Scheduler    *internal.Scheduler
	Logger       *log.Logger
}

type Handler struct {
	cfg    HandlerConfig
	logger *log.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{cfg: cfg, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-GitHub-Event header"})
		return
	}
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	internal.IncRequest(eventType)

	if h.cfg.Secret == "" {
		internal.IncUnauthenticated()
		h.logger.Printf("accepted unauthenticated delivery %s (no secret configured)", deliveryID)
	} else if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.cfg.Secret) {
		h.logger.Printf("signature mismatch for delivery %s", deliveryID)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	if eventType == "ping" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	evt, err := internal.Normalize(eventType, deliveryID, body)
	if err != nil {
		var malformed *internal.MalformedPayloadError
		switch {
		case errors.Is(err, internal.ErrUnsupportedEvent):
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "reason": "unsupported event"})
		case errors.As(err, &malformed):
			internal.IncParseError()
			h.logger.Printf("malformed %s payload: %v", eventType, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": malformed.Reason})
		default:
			internal.IncParseError()
			h.logger.Printf("normalize %s failed: %v", eventType, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}
		return
	}

	if h.cfg.Filter != nil && !h.cfg.Filter.Notify(body) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "filtered"})
		return
	}

	h.cfg.Enricher.Enrich(r.Context(), evt)

	task := internal.Task{
		DedupKey:     evt.DedupKey(),
		RepoFullName: evt.RepoFullName,
		Message:      internal.Format(evt, h.cfg.IncludeDiff),
		CreatedAt:    time.Now().UTC(),
		Metadata: map[string]string{
			"repository":  evt.RepoFullName,
			"event":       eventType,
			"action":      evt.Action,
			"delivery_id": deliveryID,
		},
	}

	if err := h.cfg.Scheduler.Enqueue(task); err != nil {
		if errors.Is(err, internal.ErrLaneSaturated) {
			w.Header().Set("Retry-After", "30")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "delivery lane saturated"})
			return
		}
		h.logger.Printf("enqueue for %s failed: %v", evt.RepoFullName, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
