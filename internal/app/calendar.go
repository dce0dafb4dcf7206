package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarSync mirrors committed bookings into the host's external calendar.
// Failures are logged by the caller and never roll a booking back.
type CalendarSync interface {
	CreateEvent(ctx context.Context, host Host, et EventType, b Booking) (eventID, meetLink string, err error)
	UpdateEvent(ctx context.Context, host Host, et EventType, b Booking) (meetLink string, err error)
	DeleteEvent(ctx context.Context, host Host, b Booking) error
}

// TokenStore persists per-host Google OAuth2 tokens.
type TokenStore interface {
	GetCalendarToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveCalendarToken(ctx context.Context, userID string, tok *oauth2.Token) error
}

// CalendarEvent represents a Google Calendar event
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Creator     string    `json:"creator,omitempty"`
}

// GoogleCalendar talks to Google Calendar on behalf of hosts that connected
// their account through the OAuth2 flow.
type GoogleCalendar struct {
	Config  *oauth2.Config
	Tokens  TokenStore
	BaseURL string
}

// NewGoogleCalendar returns nil when any OAuth2 setting is missing, which
// disables calendar sync.
func NewGoogleCalendar(clientID, clientSecret, redirectURL, baseURL string, tokens TokenStore) *GoogleCalendar {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			calendar.CalendarEventsScope,
			calendar.CalendarReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}

	return &GoogleCalendar{Config: config, Tokens: tokens, BaseURL: strings.TrimRight(baseURL, "/")}
}

// service builds a Calendar client for the host and writes back a refreshed
// access token if the token source rotated it.
func (g *GoogleCalendar) service(ctx context.Context, userID string) (*calendar.Service, error) {
	tok, err := g.Tokens.GetCalendarToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("google calendar not connected: %w", err)
	}
	ts := g.Config.TokenSource(ctx, tok)
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh google token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = tok.RefreshToken
		}
		if err := g.Tokens.SaveCalendarToken(ctx, userID, fresh); err != nil {
			return nil, fmt.Errorf("save refreshed google token: %w", err)
		}
	}
	return calendar.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(fresh))))
}

func (g *GoogleCalendar) eventTimes(host Host, b Booking) (*calendar.EventDateTime, *calendar.EventDateTime) {
	return &calendar.EventDateTime{DateTime: b.StartAtUTC.UTC().Format(time.RFC3339), TimeZone: host.Timezone},
		&calendar.EventDateTime{DateTime: b.EndAtUTC.UTC().Format(time.RFC3339), TimeZone: host.Timezone}
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, host Host, et EventType, b Booking) (string, string, error) {
	srv, err := g.service(ctx, host.ID)
	if err != nil {
		return "", "", err
	}
	start, end := g.eventTimes(host, b)
	ev := &calendar.Event{
		Summary:     fmt.Sprintf("%s with %s", et.Title, b.GuestName),
		Description: eventDescription(g.BaseURL, et, b),
		Start:       start,
		End:         end,
		Attendees:   []*calendar.EventAttendee{{Email: b.GuestEmail, DisplayName: b.GuestName}},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             b.ID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	created, err := srv.Events.Insert("primary", ev).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", "", err
	}
	return created.Id, created.HangoutLink, nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, host Host, et EventType, b Booking) (string, error) {
	if b.GoogleCalendarEventID == "" {
		return b.MeetLink, nil
	}
	srv, err := g.service(ctx, host.ID)
	if err != nil {
		return "", err
	}
	start, end := g.eventTimes(host, b)
	patched, err := srv.Events.Patch("primary", b.GoogleCalendarEventID, &calendar.Event{
		Start:       start,
		End:         end,
		Description: eventDescription(g.BaseURL, et, b),
	}).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if patched.HangoutLink != "" {
		return patched.HangoutLink, nil
	}
	return b.MeetLink, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, host Host, b Booking) error {
	if b.GoogleCalendarEventID == "" {
		return nil
	}
	srv, err := g.service(ctx, host.ID)
	if err != nil {
		return err
	}
	return srv.Events.Delete("primary", b.GoogleCalendarEventID).SendUpdates("all").Context(ctx).Do()
}

func eventDescription(baseURL string, et EventType, b Booking) string {
	var parts []string
	if et.Description != "" {
		parts = append(parts, et.Description, "")
	}
	if b.GuestNotes != "" {
		parts = append(parts, "Notes from guest:", b.GuestNotes, "")
	}
	if baseURL != "" && b.ID != "" {
		parts = append(parts,
			"---",
			fmt.Sprintf("Cancel this booking: %s/api/public/bookings/%s/cancel", baseURL, b.ID),
			fmt.Sprintf("Reschedule this booking: %s/booking/reschedule/%s", baseURL, b.ID),
		)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

const oauthStateTTL = 10 * time.Minute

// stateAudience marks OAuth2 state tokens. AuthMiddleware refuses them.
const stateAudience = "oauth-state"

// signState binds the OAuth2 round trip to the host that started it.
func signState(key []byte, hostID string, now time.Time) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   hostID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	}).SignedString(key)
}

func parseState(key []byte, state string, now func() time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return key, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithAudience(stateAudience), jwt.WithTimeFunc(now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("state has no subject")
	}
	return claims.Subject, nil
}

// StateKey derives the OAuth2 state signing key from secret so state never
// verifies as a host API token.
func StateKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(stateAudience))
	return mac.Sum(nil)
}

// GET /api/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.Google == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	hostID, ok := a.hostFromRequest(c, c.Query("user_id"))
	if !ok {
		return
	}

	state, err := signState(a.StateKey, hostID, a.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign state"})
		return
	}

	url := a.Google.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.Google == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	hostID, err := parseState(a.StateKey, c.Query("state"), a.now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	ctx := c.Request.Context()
	token, err := a.Google.Config.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	if err := a.Store.SaveCalendarToken(ctx, hostID, token); err != nil {
		a.log().Error("save calendar token", zap.String("host_id", hostID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Authorization successful"})
}

// GET /api/calendar/events?user_id=&time_min=&time_max=
func (a *App) GetGoogleCalendarEvents(c *gin.Context) {
	srv, ok := a.calendarServiceFor(c)
	if !ok {
		return
	}

	calendarID := c.DefaultQuery("calendar_id", "primary")
	timeMin := c.Query("time_min") // RFC3339 format
	timeMax := c.Query("time_max") // RFC3339 format
	maxResults := int64(250)

	eventsCall := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults)

	if timeMin != "" {
		eventsCall = eventsCall.TimeMin(timeMin)
	}
	if timeMax != "" {
		eventsCall = eventsCall.TimeMax(timeMax)
	}

	events, err := eventsCall.Context(c.Request.Context()).Do()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve events: %v", err)})
		return
	}

	calendarEvents := make([]CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		event := CalendarEvent{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Location:    item.Location,
			Status:      item.Status,
		}
		if item.Creator != nil {
			event.Creator = item.Creator.Email
		}
		event.StartTime = parseEventDateTime(item.Start)
		event.EndTime = parseEventDateTime(item.End)
		calendarEvents = append(calendarEvents, event)
	}

	c.JSON(http.StatusOK, gin.H{
		"events": calendarEvents,
		"count":  len(calendarEvents),
	})
}

// GET /api/calendar/calendars?user_id=
func (a *App) GetGoogleCalendarList(c *gin.Context) {
	srv, ok := a.calendarServiceFor(c)
	if !ok {
		return
	}

	calendarList, err := srv.CalendarList.List().Context(c.Request.Context()).Do()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve calendars: %v", err)})
		return
	}

	type CalendarInfo struct {
		ID          string `json:"id"`
		Summary     string `json:"summary"`
		Description string `json:"description,omitempty"`
		Primary     bool   `json:"primary"`
		AccessRole  string `json:"access_role"`
	}

	calendars := make([]CalendarInfo, 0, len(calendarList.Items))
	for _, item := range calendarList.Items {
		calendars = append(calendars, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}

func (a *App) calendarServiceFor(c *gin.Context) (*calendar.Service, bool) {
	if a.Google == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return nil, false
	}
	hostID, ok := a.hostFromRequest(c, c.Query("user_id"))
	if !ok {
		return nil, false
	}
	srv, err := a.Google.service(c.Request.Context(), hostID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return srv, true
}

func parseEventDateTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	} else if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
