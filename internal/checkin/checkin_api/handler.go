package checkin_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/store"
	"ms-checkin/internal/ticket"
	"ms-checkin/internal/utils"
)

const defaultQRSize = 256

// ScanProcessor is the coordinator surface the scan endpoint needs.
type ScanProcessor interface {
	ProcessScan(ctx context.Context, scannedText string, action checkin.Action) (*checkin.Result, error)
}

// TicketStore is the booking store surface the issuance endpoints need.
type TicketStore interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	SetTokenIssuedAt(ctx context.Context, bookingID string, issuedAt int64) error
	GetCheckedInCountByVenue(ctx context.Context, venueID string) (int, error)
}

// ScanGuard suppresses duplicate scan submissions across devices.
type ScanGuard interface {
	MarkScan(tokenSignature, deviceID string) (bool, error)
}

// EventPublisher streams check-in events to the rest of the platform.
type EventPublisher interface {
	PublishJSON(topic, key string, event interface{}) error
}

type Handler struct {
	Coordinator ScanProcessor
	Store       TicketStore
	Issuer      *ticket.Issuer
	Renderer    *ticket.Renderer
	Guard       ScanGuard
	Producer    EventPublisher
	Emitter     *sse.CheckInEventEmitter
	Topics      config.TopicConfig
	Logger      *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/checkin", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Post("/tickets", h.IssueTicket)
		r.Put("/tickets/{bookingID}", h.ReissueTicket)
		r.Get("/tickets/{bookingID}/qr", h.DownloadQR)
		r.Get("/venues/{venueID}/count", h.CheckedInCount)
		r.Get("/venues/{venueID}/events", h.Events)
	})
}

// Scan validates a scanned token and applies the requested transition.
// Expected POST body: {"scanned_text": "...", "action": "check_in"}
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScannedText string `json:"scanned_text"`
		Action      string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if req.ScannedText == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("scanned_text is required", ""))
		return
	}

	action, err := checkin.ParseAction(req.Action)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid action", err.Error()))
		return
	}

	// Same physical code scanned by two devices within the guard
	// window: drop the repeat before it reaches the store.
	if h.Guard != nil {
		first, err := h.Guard.MarkScan(req.ScannedText, auth.DeviceID(r.Context()))
		if err != nil {
			h.Logger.Warn("REDIS", fmt.Sprintf("scan guard unavailable: %v", err))
		} else if !first {
			h.writeJSON(w, http.StatusOK, utils.ErrorResponse("duplicate scan ignored", ""))
			return
		}
	}

	result, err := h.Coordinator.ProcessScan(r.Context(), req.ScannedText, action)
	if err != nil {
		h.writeJSON(w, scanErrorStatus(err), utils.ErrorResponse(scanErrorMessage(err), err.Error()))
		return
	}

	if result.Success {
		h.emitTransition(action, result.Booking)
	}

	message := "already processed"
	if result.Success {
		message = fmt.Sprintf("%s successful", action)
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse(message, result))
}

// IssueTicket generates the signed scannable token for a booking.
// Expected POST body: {"booking_id": "..."}
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if req.BookingID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("booking_id is required", ""))
		return
	}
	h.issue(w, r, req.BookingID, false)
}

// ReissueTicket regenerates the token after a schedule change. The
// previous token is superseded and will fail at the door.
func (h *Handler) ReissueTicket(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, chi.URLParam(r, "bookingID"), true)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, bookingID string, reissue bool) {
	booking, err := h.Store.GetBooking(r.Context(), bookingID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("booking not found", bookingID))
		return
	}
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("booking store unavailable", err.Error()))
		return
	}
	if booking.Status == models.StatusCancelled {
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("booking is cancelled", bookingID))
		return
	}

	token, claims, err := h.Issuer.Issue(*booking)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to issue ticket", err.Error()))
		return
	}

	if err := h.Store.SetTokenIssuedAt(r.Context(), bookingID, claims.IssuedAt); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("failed to record issuance", err.Error()))
		return
	}

	h.Logger.LogTicket(fmt.Sprintf("issued ticket for booking %s (reissue=%t)", bookingID, reissue))
	h.publishEvent(h.Topics.TicketIssued, bookingID, models.TicketIssuedEvent{
		BookingID:        bookingID,
		ConfirmationCode: booking.ConfirmationCode,
		VenueID:          booking.VenueID,
		IssuedAt:         claims.IssuedAt,
		ExpiresAt:        claims.ExpiresAt,
		Reissued:         reissue,
		At:               time.Now(),
	})

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("ticket issued", map[string]interface{}{
		"token":      token,
		"filename":   h.Renderer.Filename(booking.ConfirmationCode),
		"issued_at":  claims.IssuedAt,
		"expires_at": claims.ExpiresAt,
	}))
}

// DownloadQR renders the booking's current ticket as a PNG. The token
// is reconstructed from the recorded issuance, so the download always
// matches the ticket that will scan successfully at the door.
func (h *Handler) DownloadQR(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	booking, err := h.Store.GetBooking(r.Context(), bookingID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("booking not found", bookingID))
		return
	}
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("booking store unavailable", err.Error()))
		return
	}
	if booking.Status == models.StatusCancelled {
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("booking is cancelled", bookingID))
		return
	}
	if booking.TokenIssuedAt == 0 {
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("no ticket issued for booking", bookingID))
		return
	}

	token, _, err := h.Issuer.IssueWithIssuedAt(*booking, booking.TokenIssuedAt)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to build ticket", err.Error()))
		return
	}

	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed <= 0 {
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid size", s))
			return
		}
		size = parsed
	}

	png, err := h.Renderer.Render(token, size)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to render QR", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.Renderer.Filename(booking.ConfirmationCode)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// CheckedInCount reports how many bookings at a venue are currently
// checked in.
func (h *Handler) CheckedInCount(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")

	count, err := h.Store.GetCheckedInCountByVenue(r.Context(), venueID)
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("failed to get checked-in count", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("checked-in count", map[string]interface{}{
		"venue_id":         venueID,
		"checked_in_count": count,
	}))
}

// Events streams the venue's check-in feed over SSE.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	venueID := chi.URLParam(r, "venueID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events := h.Emitter.Subscribe(r.Context(), venueID)
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *Handler) emitTransition(action checkin.Action, snap *models.BookingSnapshot) {
	if snap == nil {
		return
	}

	event := models.CheckInEvent{
		BookingID:        snap.BookingID,
		ConfirmationCode: snap.ConfirmationCode,
		VenueID:          snap.VenueID,
		Action:           action.String(),
		Customer:         snap.Customer,
		GroupSize:        snap.GroupSize,
		At:               time.Now(),
	}

	topic := h.Topics.CheckInCompleted
	if action == checkin.ActionCheckOut {
		topic = h.Topics.CheckOutCompleted
	}
	h.publishEvent(topic, snap.BookingID, event)

	if h.Emitter != nil && snap.VenueID != "" {
		h.Emitter.Broadcast(snap.VenueID, event)
	}
}

func (h *Handler) publishEvent(topic, key string, event interface{}) {
	if h.Producer == nil || topic == "" {
		return
	}
	if err := h.Producer.PublishJSON(topic, key, event); err != nil {
		h.Logger.LogKafka("PUBLISH_FAILED", topic, err.Error())
	} else {
		h.Logger.LogKafka("PUBLISH", topic, key)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// scanErrorStatus maps the coordinator taxonomy onto HTTP statuses.
func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, checkin.ErrMalformedScan):
		return http.StatusBadRequest
	case errors.Is(err, checkin.ErrTamper):
		return http.StatusUnauthorized
	case errors.Is(err, checkin.ErrExpiredToken):
		return http.StatusGone
	case errors.Is(err, checkin.ErrUnknownBooking):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func scanErrorMessage(err error) string {
	switch {
	case errors.Is(err, checkin.ErrMalformedScan):
		return "not a valid ticket code"
	case errors.Is(err, checkin.ErrTamper):
		return "ticket failed verification"
	case errors.Is(err, checkin.ErrExpiredToken):
		return "ticket is no longer valid"
	case errors.Is(err, checkin.ErrUnknownBooking):
		return "booking not found"
	case errors.Is(err, checkin.ErrStateConflict):
		return "booking is not in the right state"
	case errors.Is(err, checkin.ErrNetwork):
		return "booking store unreachable, please retry"
	default:
		return "scan failed"
	}
}
