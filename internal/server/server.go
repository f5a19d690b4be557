// Package server is the webhook deployment of the bot: Telegram pushes
// updates to /webhook and an external scheduler hits /cron/:slot.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mit-bot/internal/lifecycle"
	"mit-bot/internal/scheduler"
	"mit-bot/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update) error
}

type Firer interface {
	Fire(ctx context.Context, slot lifecycle.Slot) ([]scheduler.Result, error)
}

type Server struct {
	addr    string
	secret  string
	updates UpdateHandler
	driver  Firer
	log     *zap.Logger
	engine  *gin.Engine
}

// New wires the routes. An empty secret disables header verification.
func New(addr, secret string, updates UpdateHandler, driver Firer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		secret:  secret,
		updates: updates,
		driver:  driver,
		log:     log.Named("http"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.health)
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	signed := r.Group("/", s.verifySecret())
	signed.POST("/webhook", s.webhook)
	signed.POST("/cron/:slot", s.cron)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "MIT bot is running")
}

func (s *Server) verifySecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(telegram.SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			s.log.Warn("rejected request with bad secret", zap.String("path", c.Request.URL.Path), zap.String("remote", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func (s *Server) webhook(c *gin.Context) {
	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	// non-2xx makes Telegram redeliver; a failed store write mutated nothing
	if err := s.updates.HandleUpdate(c.Request.Context(), upd); err != nil {
		s.log.Error("update failed", zap.Int("update_id", upd.UpdateID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) cron(c *gin.Context) {
	slot, ok := lifecycle.ParseSlot(c.Param("slot"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be morning or evening"})
		return
	}

	results, err := s.driver.Fire(c.Request.Context(), slot)
	if err != nil {
		s.log.Error("trigger failed", zap.String("slot", string(slot)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
