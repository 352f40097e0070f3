package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"oxbobot/pkg/logger"
	"oxbobot/storage"

	"github.com/gin-gonic/gin"
)

// New builds the read-only status API.
func New(stg storage.IStorage, log logger.ILogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) {
		if err := stg.Ping(c.Request.Context()); err != nil {
			log.Warning("health check failed", logger.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/policy", func(c *gin.Context) {
			policy, err := stg.Policy().Snapshot(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, policy)
		})

		api.GET("/users", func(c *gin.Context) {
			users, err := stg.User().List(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if users == nil {
				c.JSON(http.StatusOK, []any{})
				return
			}
			c.JSON(http.StatusOK, users)
		})
	}

	return r
}

// RunServer serves the API on addr until ctx is cancelled.
func RunServer(ctx context.Context, addr string, stg storage.IStorage, log logger.ILogger) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           New(stg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warning("status api shutdown failed", logger.Error(err))
		}
	}()

	log.Info("status api listening", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
