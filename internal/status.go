package internal

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusHandler exposes operational state read-only: dead-letter counts, lane
// backlog depths, and delivery counters.
type StatusHandler struct {
	scheduler   *Scheduler
	deadLetters *DeadLetterLog
	window      *DedupWindow
	startedAt   time.Time
}

func NewStatusHandler(scheduler *Scheduler, deadLetters *DeadLetterLog, window *DedupWindow) *StatusHandler {
	return &StatusHandler{
		scheduler:   scheduler,
		deadLetters: deadLetters,
		window:      window,
		startedAt:   time.Now(),
	}
}

type statusResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Delivered     int64          `json:"delivered"`
	Deduped       int64          `json:"deduped"`
	Rejected      int64          `json:"rejected"`
	Retries       int64          `json:"retries"`
	DedupWindow   int            `json:"dedup_window"`
	Lanes         map[string]int `json:"lanes"`
	DeadLetters   struct {
		Total  int64        `json:"total"`
		Recent []DeadLetter `json:"recent"`
	} `json:"dead_letters"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Delivered:     deliveredTotal.Value(),
		Deduped:       dedupedTotal.Value(),
		Rejected:      rejectedTotal.Value(),
		Retries:       retriesTotal.Value(),
		Lanes:         h.scheduler.LaneDepths(),
	}
	if h.window != nil {
		resp.DedupWindow = h.window.Len()
	}
	resp.DeadLetters.Total = h.deadLetters.Count()
	resp.DeadLetters.Recent = h.deadLetters.Recent()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
