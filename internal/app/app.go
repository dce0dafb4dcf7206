package app

import (
	"time"

	"go.uber.org/zap"

	"meeting-scheduler/internal/notify"
)

// App holds the dependencies shared by every handler.
type App struct {
	Store Store

	// Google backs the OAuth2 connect flow and the calendar passthrough
	// routes; Calendar receives booking side effects. Both are usually the
	// same *GoogleCalendar and either may be nil.
	Google   *GoogleCalendar
	Calendar CalendarSync
	Events   notify.Publisher

	Logger   *zap.Logger
	StateKey []byte

	// Now and Async are overridden in tests.
	Now   func() time.Time
	Async func(func())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *App) log() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *App) async(fn func()) {
	if a.Async != nil {
		a.Async(fn)
		return
	}
	go fn()
}
