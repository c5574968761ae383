// Package admin serves the operator HTTP surface of z21d: health, live
// sessions, track power, Prometheus metrics and a websocket frame monitor.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/z21lan/internal/auth"
	"github.com/danmuck/z21lan/internal/observability"
	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
)

// Station is the engine surface the admin server reads and drives.
type Station interface {
	Sessions() []session.Session
	Power() protocol.PowerState
	SetPower(state protocol.PowerState)
}

type Config struct {
	Addr        string
	CorsOrigins []string
	MaxWatchers int
	Version     string
	// Token, when set, is required as a bearer token on POST routes.
	Token string
}

type Server struct {
	cfg     Config
	station Station
	hub     *Hub
	router  *gin.Engine
	started time.Time
}

type sessionView struct {
	Client   uint16   `json:"client"`
	Classes  []string `json:"classes"`
	Flags    uint32   `json:"flags"`
	Liveness uint8    `json:"liveness"`
}

func New(cfg Config, st Station, hub *Hub) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccess(log.Logger, "admin"))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if hub == nil {
		hub = NewHub(cfg.MaxWatchers)
	}

	s := &Server{
		cfg:     cfg,
		station: st,
		hub:     hub,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "z21d",
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":    true,
			"sessions": len(s.station.Sessions()),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/sessions", func(c *gin.Context) {
		sessions := s.station.Sessions()
		out := make([]sessionView, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, sessionView{
				Client:   uint16(sess.Client),
				Classes:  strings.Split(sess.Mask.String(), "|"),
				Flags:    uint32(bcflag.ToWire(sess.Mask)),
				Liveness: sess.Liveness,
			})
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	})

	s.router.GET("/power", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"power": s.station.Power().String()})
	})

	s.router.POST("/power", s.requireToken, func(c *gin.Context) {
		var req struct {
			State string `json:"state"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		state, ok := parsePower(req.State)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be on, off or stop"})
			return
		}
		s.station.SetPower(state)
		c.JSON(http.StatusOK, gin.H{"power": state.String()})
	})

	s.router.GET("/monitor", s.handleMonitor)
}

func (s *Server) requireToken(c *gin.Context) {
	if s.cfg.Token == "" {
		c.Next()
		return
	}
	if err := auth.ValidateHeader(auth.StaticToken{Token: s.cfg.Token}, c.GetHeader("Authorization")); err != nil {
		log.Warn().Str("remote", c.ClientIP()).Str("path", c.FullPath()).Msg("admin_unauthorized")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) handleMonitor(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("monitor_upgrade_failed")
		return
	}
	w, err := s.hub.Add(conn)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	log.Info().Str("remote", c.ClientIP()).Int("watchers", s.hub.Count()).Msg("monitor_connected")
	defer func() {
		s.hub.Remove(w)
		log.Info().Str("remote", c.ClientIP()).Msg("monitor_disconnected")
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Serve listens on cfg.Addr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("admin_listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func parsePower(raw string) (protocol.PowerState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on":
		return protocol.PowerOn, true
	case "off":
		return protocol.PowerOff, true
	case "stop", "emergency_stop":
		return protocol.PowerEmergencyStop, true
	default:
		return 0, false
	}
}
