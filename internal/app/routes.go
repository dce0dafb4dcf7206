package app

import "github.com/gin-gonic/gin"

// Register mounts every route. auth guards the host API; limit, when not
// nil, guards the public booking routes.
func (a *App) Register(router gin.IRouter, auth, limit gin.HandlerFunc) {
	router.GET("/healthz", a.HealthHandler)
	router.GET("/readyz", a.ReadyHandler)

	// OAuth2 callback (must be outside auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api")

	public := api.Group("/public")
	if limit != nil {
		public.Use(limit)
	}
	{
		public.GET("/event-types/:id", a.PublicEventTypeHandler)
		public.GET("/slots", a.GetSlotsHandler)
		public.GET("/bookable-dates", a.GetBookableDatesHandler)
		public.POST("/bookings", a.CreateBookingHandler)
		public.POST("/bookings/:id/cancel", a.GuestCancelBookingHandler)
		public.POST("/bookings/:id/reschedule", a.RescheduleBookingHandler)
	}

	host := api.Group("")
	host.Use(auth)
	{
		users := host.Group("/users")
		{
			users.POST("/:id/availability", a.SetAvailabilityHandler)
			users.GET("/:id/availability", a.ListAvailabilityHandler)
			users.PUT("/:id/availability/:rule_id", a.UpdateAvailabilityHandler)
			users.DELETE("/:id/availability/:rule_id", a.DeleteAvailabilityHandler)
			users.PUT("/:id/timezone", a.UpdateTimezoneHandler)
			users.POST("/:id/event-types", a.CreateEventTypeHandler)
			users.GET("/:id/event-types", a.ListEventTypesHandler)
			users.GET("/:id/bookings", a.ListBookingsHandler)
		}

		host.GET("/event-types/:id", a.GetEventTypeHandler)
		host.PUT("/event-types/:id", a.UpdateEventTypeHandler)
		host.DELETE("/event-types/:id", a.DeleteEventTypeHandler)

		host.PATCH("/bookings/:id", a.UpdateBookingStatusHandler)
		host.DELETE("/bookings/:id", a.CancelBookingHandler)

		// Google Calendar integration routes
		calendar := host.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.GET("/events", a.GetGoogleCalendarEvents)
			calendar.GET("/calendars", a.GetGoogleCalendarList)
		}
	}
}
