package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meeting-scheduler/internal/availability"
)

// writeError maps domain errors to responses. Anything unrecognised is a 500
// and gets logged; its text is not echoed to the client.
func (a *App) writeError(c *gin.Context, err error) {
	if pe := AsPolicyError(err); pe != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "booking policy violated",
			"violations": pe.Violations,
		})
		return
	}
	switch {
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": rootMessage(err)})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, availability.ErrInvalidRule),
		errors.Is(err, availability.ErrInvalidLocalTime),
		errors.Is(err, availability.ErrInvalidDate),
		errors.Is(err, availability.ErrUnknownTimezone):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		a.log().Error("request failed",
			zap.String("method", c.Request.Method), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func rootMessage(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return ErrSlotUnavailable.Error()
	case errors.Is(err, ErrAlreadyCancelled):
		return ErrAlreadyCancelled.Error()
	}
	return err.Error()
}

// POST /users/:id/availability
// Accepts a list of rules; the batch is saved whole or not at all.
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	var payload []AvailabilityRule
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range payload {
		if err := normalizeRule(&payload[i]); err != nil {
			a.writeError(c, err)
			return
		}
		payload[i].UserID = userID
	}

	if err := a.Store.InsertAvailabilityRules(c.Request.Context(), payload); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

// normalizeRule validates a rule and rewrites its times to canonical HH:MM.
func normalizeRule(r *AvailabilityRule) error {
	rule, err := r.Rule()
	if err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	r.StartTime, r.EndTime = rule.Start.String(), rule.End.String()
	return nil
}

// PUT /users/:id/availability/:rule_id
func (a *App) UpdateAvailabilityHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	ruleID, err := strconv.Atoi(c.Param("rule_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
		return
	}

	var payload AvailabilityRule
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := normalizeRule(&payload); err != nil {
		a.writeError(c, err)
		return
	}
	payload.ID = ruleID
	payload.UserID = userID

	if err := a.Store.UpdateAvailabilityRule(c.Request.Context(), &payload); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// DELETE /users/:id/availability/:rule_id
func (a *App) DeleteAvailabilityHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	ruleID, err := strconv.Atoi(c.Param("rule_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
		return
	}
	if err := a.Store.DeleteAvailabilityRule(c.Request.Context(), userID, ruleID); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /users/:id/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	rules, err := a.Store.ListAvailabilityRules(c.Request.Context(), userID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if rules == nil {
		rules = []AvailabilityRule{}
	}
	c.JSON(http.StatusOK, rules)
}

// PUT /users/:id/timezone
// Takes effect immediately for every future slot computation.
func (a *App) UpdateTimezoneHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	var req struct {
		Timezone string `json:"timezone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc, err := availability.LoadLocation(req.Timezone)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.Store.UpdateHostTimezone(c.Request.Context(), userID, loc.String()); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID, "timezone": loc.String()})
}

type eventTypeReq struct {
	Slug               string `json:"slug"`
	Title              string `json:"title" binding:"required"`
	Description        string `json:"description"`
	DurationMinutes    int    `json:"duration_minutes"`
	MinimumNoticeHours *int   `json:"minimum_notice_hours"`
	MaximumNoticeDays  *int   `json:"maximum_notice_days"`
	MaxBookingsPerWeek *int   `json:"max_bookings_per_week"`
}

const defaultMaximumNoticeDays = 60

func (r eventTypeReq) eventType() EventType {
	e := EventType{
		Slug:               r.Slug,
		Title:              strings.TrimSpace(r.Title),
		Description:        r.Description,
		DurationMinutes:    r.DurationMinutes,
		MaximumNoticeDays:  defaultMaximumNoticeDays,
		MaxBookingsPerWeek: r.MaxBookingsPerWeek,
	}
	if r.MinimumNoticeHours != nil {
		e.MinimumNoticeHours = *r.MinimumNoticeHours
	}
	if r.MaximumNoticeDays != nil {
		e.MaximumNoticeDays = *r.MaximumNoticeDays
	}
	if e.Slug == "" {
		e.Slug = slugify(e.Title)
	}
	return e
}

func validateEventType(e EventType) error {
	switch {
	case e.Title == "":
		return invalid("title required")
	case e.Slug == "":
		return invalid("slug required")
	case e.DurationMinutes <= 0:
		return invalid("duration_minutes must be positive")
	case e.MinimumNoticeHours < 0:
		return invalid("minimum_notice_hours must not be negative")
	case e.MaximumNoticeDays <= 0:
		return invalid("maximum_notice_days must be positive")
	case e.MaxBookingsPerWeek != nil && *e.MaxBookingsPerWeek <= 0:
		return invalid("max_bookings_per_week must be positive or null")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// POST /users/:id/event-types
func (a *App) CreateEventTypeHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	var req eventTypeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e := req.eventType()
	e.UserID = userID
	if err := validateEventType(e); err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.Store.CreateEventType(c.Request.Context(), &e); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// GET /users/:id/event-types
func (a *App) ListEventTypesHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	list, err := a.Store.ListEventTypes(c.Request.Context(), userID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if list == nil {
		list = []EventType{}
	}
	c.JSON(http.StatusOK, list)
}

// ownedEventType loads the event type and checks the caller may manage it.
func (a *App) ownedEventType(c *gin.Context) (EventType, bool) {
	e, err := a.Store.GetEventType(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return EventType{}, false
	}
	if _, ok := a.hostFromRequest(c, e.UserID); !ok {
		return EventType{}, false
	}
	return e, true
}

// GET /event-types/:id
func (a *App) GetEventTypeHandler(c *gin.Context) {
	e, ok := a.ownedEventType(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e)
}

// PUT /event-types/:id
func (a *App) UpdateEventTypeHandler(c *gin.Context) {
	current, ok := a.ownedEventType(c)
	if !ok {
		return
	}
	var req eventTypeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e := req.eventType()
	e.ID, e.UserID, e.CreatedAt = current.ID, current.UserID, current.CreatedAt
	if err := validateEventType(e); err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.Store.UpdateEventType(c.Request.Context(), &e); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DELETE /event-types/:id
func (a *App) DeleteEventTypeHandler(c *gin.Context) {
	e, ok := a.ownedEventType(c)
	if !ok {
		return
	}
	if err := a.Store.DeleteEventType(c.Request.Context(), e.UserID, e.ID); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /users/:id/bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	userID, ok := a.hostFromRequest(c, c.Param("id"))
	if !ok {
		return
	}
	fromStr := c.Query("from")
	toStr := c.Query("to")

	var (
		from time.Time
		to   time.Time
		err  error
	)

	// if both provided, parse
	if fromStr != "" && toStr != "" {
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}
	}

	bookings, err := a.Store.ListBookings(c.Request.Context(), userID, from, to, fromStr != "" && toStr != "")
	if err != nil {
		a.writeError(c, err)
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

func (a *App) ownedBooking(c *gin.Context) (Booking, bool) {
	b, err := a.Store.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return Booking{}, false
	}
	if _, ok := a.hostFromRequest(c, b.UserID); !ok {
		return Booking{}, false
	}
	return b, true
}

// PATCH /bookings/:id
func (a *App) UpdateBookingStatusHandler(c *gin.Context) {
	b, ok := a.ownedBooking(c)
	if !ok {
		return
	}
	var req struct {
		Status availability.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := a.SetBookingStatus(c.Request.Context(), b.ID, req.Status)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	b, ok := a.ownedBooking(c)
	if !ok {
		return
	}
	if _, err := a.CancelBooking(c.Request.Context(), b.ID); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /public/event-types/:id
func (a *App) PublicEventTypeHandler(c *gin.Context) {
	ctx := c.Request.Context()
	e, err := a.Store.GetEventType(ctx, c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	host, err := a.Store.GetHost(ctx, e.UserID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               e.ID,
		"slug":             e.Slug,
		"title":            e.Title,
		"description":      e.Description,
		"duration_minutes": e.DurationMinutes,
		"host": gin.H{
			"username": host.Username,
			"timezone": host.Timezone,
		},
	})
}

// GET /public/slots?event_type_id=&date=YYYY-MM-DD
func (a *App) GetSlotsHandler(c *gin.Context) {
	eventTypeID := c.Query("event_type_id")
	dateStr := c.Query("date")
	if eventTypeID == "" || dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type_id and date required"})
		return
	}
	date, err := availability.ParseDate(dateStr)
	if err != nil {
		a.writeError(c, err)
		return
	}
	slots, err := a.AvailableSlots(c.Request.Context(), eventTypeID, date)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "slots": slots})
}

// GET /public/bookable-dates?event_type_id=
func (a *App) GetBookableDatesHandler(c *gin.Context) {
	eventTypeID := c.Query("event_type_id")
	if eventTypeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type_id required"})
		return
	}
	dates, err := a.BookableDates(c.Request.Context(), eventTypeID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if dates == nil {
		dates = []availability.Date{}
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

type createBookingReq struct {
	EventTypeID string    `json:"event_type_id" binding:"required"`
	GuestName   string    `json:"guest_name" binding:"required"`
	GuestEmail  string    `json:"guest_email" binding:"required,email"`
	GuestNotes  string    `json:"guest_notes,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// POST /public/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := a.CreateBooking(c.Request.Context(), BookingRequest{
		EventTypeID: req.EventTypeID,
		GuestName:   req.GuestName,
		GuestEmail:  req.GuestEmail,
		GuestNotes:  req.GuestNotes,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// POST /public/bookings/:id/cancel
func (a *App) GuestCancelBookingHandler(c *gin.Context) {
	b, err := a.CancelBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": b.ID, "status": b.Status})
}

// POST /public/bookings/:id/reschedule
func (a *App) RescheduleBookingHandler(c *gin.Context) {
	var req struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := a.RescheduleBooking(c.Request.Context(), c.Param("id"), req.Start, req.End)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz
func (a *App) ReadyHandler(c *gin.Context) {
	if err := a.Store.Ping(c.Request.Context()); err != nil {
		a.log().Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
