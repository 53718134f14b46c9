package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultAckDeadline is how long an interaction may go unacknowledged.
const DefaultAckDeadline = 3 * time.Second

// Response types.
const (
	TypeMessage         = "message"
	TypeDeferredMessage = "deferred_message"
)

// InteractionRequest is the JSON body for POST /api/v1/interactions.
// A zero guild_id means the command was sent outside a guild.
type InteractionRequest struct {
	Command   string  `json:"command"`
	GuildID   int64   `json:"guild_id,omitempty,string"`
	UserID    int64   `json:"user_id,string"`
	ChannelID int64   `json:"channel_id,string"`
	Options   Options `json:"options"`
}

// InteractionResponse is the acknowledgement written back to the caller.
type InteractionResponse struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Handler serves the interaction endpoint. Followups to deferred commands
// are posted to the invocation's channel through the notifier.
type Handler struct {
	svc         *Service
	notifier    Notifier
	ackDeadline time.Duration
	log         *slog.Logger
}

// NewHandler creates the HTTP transport for svc.
func NewHandler(svc *Service, notifier Notifier, ackDeadline time.Duration, log *slog.Logger) *Handler {
	if ackDeadline <= 0 {
		ackDeadline = DefaultAckDeadline
	}
	return &Handler{
		svc:         svc,
		notifier:    notifier,
		ackDeadline: ackDeadline,
		log:         log.With("component", "interactions"),
	}
}

// HandleInteraction handles POST /api/v1/interactions.
// It runs the command and returns as soon as the command acknowledges.
// A command that fails to acknowledge before the deadline gets 504.
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !Known(req.Command) {
		writeError(w, "unknown command: "+req.Command, http.StatusBadRequest)
		return
	}
	if req.UserID == 0 || req.ChannelID == 0 {
		writeError(w, "user_id and channel_id are required", http.StatusBadRequest)
		return
	}

	in := newHTTPInteraction(req, received.Add(h.ackDeadline), h.notifier)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The command outlives the request once acknowledged.
		_ = h.svc.Dispatch(context.WithoutCancel(r.Context()), in, req.Command, req.Options)
	}()

	timer := time.NewTimer(time.Until(in.deadline))
	defer timer.Stop()

	select {
	case resp := <-in.acked:
		writeJSON(w, http.StatusOK, resp)
	case <-timer.C:
		if resp, ok := in.expire(); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		h.log.Warn("interaction not acknowledged in time", "command", req.Command, "user", req.UserID)
		writeError(w, "interaction expired", http.StatusGatewayTimeout)
	case <-done:
		// Finished without acknowledging, e.g. after a failed defer.
		select {
		case resp := <-in.acked:
			writeJSON(w, http.StatusOK, resp)
		default:
			writeError(w, "interaction expired", http.StatusGatewayTimeout)
		}
	case <-r.Context().Done():
		in.expire()
	}
}

// httpInteraction acknowledges through a channel read by the HTTP handler.
type httpInteraction struct {
	req      InteractionRequest
	deadline time.Time
	notifier Notifier
	acked    chan InteractionResponse
	now      func() time.Time

	mu           sync.Mutex
	acknowledged bool
	expired      bool
}

func newHTTPInteraction(req InteractionRequest, deadline time.Time, notifier Notifier) *httpInteraction {
	return &httpInteraction{
		req:      req,
		deadline: deadline,
		notifier: notifier,
		acked:    make(chan InteractionResponse, 1),
		now:      time.Now,
	}
}

func (i *httpInteraction) GuildID() (int64, bool) { return i.req.GuildID, i.req.GuildID != 0 }
func (i *httpInteraction) UserID() int64          { return i.req.UserID }
func (i *httpInteraction) ChannelID() int64       { return i.req.ChannelID }

func (i *httpInteraction) Respond(_ context.Context, text string) error {
	return i.ack(InteractionResponse{Type: TypeMessage, Content: text})
}

func (i *httpInteraction) Defer(context.Context) error {
	return i.ack(InteractionResponse{Type: TypeDeferredMessage})
}

func (i *httpInteraction) Followup(ctx context.Context, text string) error {
	return i.notifier.SendChannel(ctx, i.req.ChannelID, text)
}

func (i *httpInteraction) ack(resp InteractionResponse) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.acknowledged {
		return errAlreadyAcknowledged
	}
	if i.expired || i.now().After(i.deadline) {
		i.expired = true
		return ErrInteractionExpired
	}
	i.acknowledged = true
	i.acked <- resp
	return nil
}

// expire settles the interaction as timed out. If the command acknowledged
// in the meantime its response is returned instead.
func (i *httpInteraction) expire() (InteractionResponse, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	select {
	case resp := <-i.acked:
		return resp, true
	default:
	}
	if !i.acknowledged {
		i.expired = true
	}
	return InteractionResponse{}, false
}

var errAlreadyAcknowledged = errors.New("command: interaction already acknowledged")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
