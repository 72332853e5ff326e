package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiosk/internal/attendance"
	"kiosk/internal/auth"
	"kiosk/internal/cache"
	"kiosk/internal/capture"
	"kiosk/internal/config"
	"kiosk/internal/hrapi"
	"kiosk/internal/httpmiddleware"
	"kiosk/internal/notify"
)

var (
	sessionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_capture_sessions_opened_total",
		Help: "Capture sessions opened, by action kind.",
	}, []string{"action"})
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_submissions_total",
		Help: "Photo attendance submissions, by result.",
	}, []string{"result"})
	cameraFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_camera_failures_total",
		Help: "Sessions closed because the camera could not be acquired.",
	})
)

// server bundles the collaborators the handlers need. snapshots may be
// nil when Redis is not wired (handlers fall back to direct fetches).
type server struct {
	cfg       config.App
	hr        *hrapi.Client
	sessions  *capture.Manager
	snapshots *cache.Cache
	bus       notify.Bus
}

func (s *server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1", auth.Bearer(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))

	v1.GET("/attendance/me", s.myAttendance)
	v1.GET("/attendance/:employeeID",
		auth.RequireRole(auth.RoleManager, auth.RoleAdmin), s.employeeAttendance)

	v1.POST("/capture", s.openCapture)
	v1.GET("/capture/:id", s.captureStatus)
	v1.POST("/capture/:id/frame", s.captureFrame)
	v1.POST("/capture/:id/retake", s.captureRetake)
	v1.POST("/capture/:id/submit", s.captureSubmit)
	v1.DELETE("/capture/:id", s.captureCancel)

	return r
}

func (s *server) healthz(c *gin.Context) {
	redisHealthy := s.snapshots.Healthy(c.Request.Context())
	hrHealthy := s.hr.Health(c.Request.Context()) == nil
	status := http.StatusOK
	if !redisHealthy || !hrHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "hr_api": hrHealthy})
}

func (s *server) myAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	s.serveHistory(c, claims.Subject, func(ctx context.Context) ([]attendance.Event, error) {
		return s.hr.MyAttendance(ctx, auth.TokenFromContext(c))
	})
}

func (s *server) employeeAttendance(c *gin.Context) {
	employeeID := c.Param("employeeID")
	s.serveHistory(c, employeeID, func(ctx context.Context) ([]attendance.Event, error) {
		return s.hr.EmployeeAttendance(ctx, auth.TokenFromContext(c), employeeID)
	})
}

// serveHistory fetches a subject's raw events (snapshot cache first),
// folds them through the aggregator and returns the day records.
func (s *server) serveHistory(c *gin.Context, subject string, fetch func(context.Context) ([]attendance.Event, error)) {
	ctx := c.Request.Context()

	var events []attendance.Event
	cached := false
	if s.snapshots != nil {
		events, cached = s.snapshots.GetEvents(ctx, subject)
	}
	if !cached {
		var err error
		events, err = fetch(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if s.snapshots != nil {
			if err := s.snapshots.SetEvents(ctx, subject, events); err != nil {
				log.Printf("snapshot store failed for %s: %v", subject, err)
			}
		}
	}

	records, err := attendance.GroupByDate(events)
	if err != nil {
		// Skip policy: malformed events are dropped, valid ones served.
		log.Printf("skipped malformed attendance events for %s: %v", subject, err)
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "cached": cached})
}

func (s *server) openCapture(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := attendance.ParseKind(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	subject := claims.Subject
	submitter := s.hr.PhotoSubmitter(auth.TokenFromContext(c))

	sess, err := s.sessions.Open(kind, submitter, func(sess *capture.Session, submitted bool) {
		if errors.Is(sess.Err(), capture.ErrCameraUnavailable) {
			cameraFailures.Inc()
		}
		if !submitted {
			return
		}
		// The subject's history changed: drop the snapshot and tell the
		// warmer so the next view re-fetches fresh data.
		ctx := context.Background()
		if s.snapshots != nil {
			if err := s.snapshots.Invalidate(ctx, subject); err != nil {
				log.Printf("snapshot invalidate failed for %s: %v", subject, err)
			}
		}
		if s.bus != nil {
			if err := s.bus.Publish(ctx, notify.Refresh{Subject: subject}); err != nil {
				log.Printf("refresh publish failed for %s: %v", subject, err)
			}
		}
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionsOpened.WithLabelValues(string(kind)).Inc()
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID, "phase": sess.Phase().String()})
}

func (s *server) captureStatus(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	_, hasFrame := sess.Frame()
	resp := gin.H{
		"id":        sess.ID,
		"action":    string(sess.Action),
		"phase":     sess.Phase().String(),
		"has_frame": hasFrame,
	}
	if err := sess.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) captureFrame(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	if err := sess.Capture(c.Request.Context()); err != nil {
		if errors.Is(err, capture.ErrBadPhase) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "phase": sess.Phase().String()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	frame, _ := sess.Frame()
	c.JSON(http.StatusOK, gin.H{
		"phase":   sess.Phase().String(),
		"preview": hrapi.DataURL(frame),
	})
}

func (s *server) captureRetake(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	if err := sess.Retake(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "phase": sess.Phase().String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": sess.Phase().String()})
}

func (s *server) captureSubmit(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	err := sess.Submit(c.Request.Context())
	switch {
	case err == nil:
		phase := sess.Phase()
		if phase == capture.PhaseClosed {
			submissions.WithLabelValues("success").Inc()
		}
		c.JSON(http.StatusOK, gin.H{"phase": phase.String()})
	case errors.Is(err, capture.ErrBadPhase):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "phase": sess.Phase().String()})
	case errors.Is(err, capture.ErrSubmissionFailed):
		submissions.WithLabelValues("failure").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "phase": sess.Phase().String()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *server) captureCancel(c *gin.Context) {
	if sess, ok := s.sessions.Get(c.Param("id")); ok {
		sess.Cancel()
	}
	// Cancel is idempotent; an already-gone session is fine.
	c.Status(http.StatusNoContent)
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
