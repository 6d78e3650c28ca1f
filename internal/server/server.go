package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"studieplekken/internal/auth"
	"studieplekken/internal/calendar"
	"studieplekken/internal/config"
	"studieplekken/internal/location"
	"studieplekken/internal/notify"
	"studieplekken/internal/reservation"
	"studieplekken/internal/user"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, mailService *notify.Service, reservations reservation.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	locationHandler := location.NewHandler(db)
	calendarHandler := calendar.NewHandler(db, location.NewRepository(db))
	reservationHandler := reservation.NewHandler(reservations)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/locations", locationHandler.ListLocations)
		protected.GET("/locations/:locationID", locationHandler.GetLocation)
		protected.GET("/locations/:locationID/periods", calendarHandler.GetPeriodsOfLocation)
		protected.GET("/locations/:locationID/timeslots", calendarHandler.GetTimeslotsOfLocation)
		protected.GET("/locations/:locationID/status", calendarHandler.GetLocationStatus)
		protected.GET("/periods/:periodID/timeslots", calendarHandler.GetTimeslotsOfPeriod)

		protected.POST("/reservations", reservationHandler.Reserve)
		protected.DELETE("/reservations/:timeslotID", reservationHandler.Cancel)
		protected.GET("/reservations/me", reservationHandler.MyReservations)
	}

	// Calendar and location management is for admins only.
	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/locations", locationHandler.CreateLocation)
		admin.POST("/periods", calendarHandler.AddPeriods)
		admin.PUT("/periods/:periodID", calendarHandler.UpdatePeriod)
		admin.DELETE("/periods/:periodID", calendarHandler.DeletePeriod)
		admin.PUT("/locations/:locationID/periods", calendarHandler.UpdatePeriods)
	}

	// The scan desk is staffed by employees as well.
	staff := router.Group("/admin")
	staff.Use(authMiddleware, auth.RequireRole(auth.RoleEmployee, auth.RoleAdmin))
	{
		staff.GET("/timeslots/:timeslotID/attendees", reservationHandler.Attendees)
		staff.PUT("/timeslots/:timeslotID/attendance", reservationHandler.SetAttendance)
		staff.POST("/timeslots/:timeslotID/sweep", reservationHandler.Sweep)
		staff.GET("/no-shows", reservationHandler.NoShows)
		staff.POST("/no-shows/notify", reservationHandler.NotifyNoShows)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.GET("/test-mail", TestMail(mailService))

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
