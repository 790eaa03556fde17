// Package dashboard serves a small operational HTTP API: liveness and
// daily service statistics.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vgrishin/courier/internal/models"
	"github.com/vgrishin/courier/internal/registry"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB         *gorm.DB
	Registry   *registry.Registry
	ActiveJobs func() int64 // downloads currently in flight
	Addr       string       // defaults to ":8080"
	Out        io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Registry == nil {
		return fmt.Errorf("dashboard: registry is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	router := newRouter(opts)
	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "dashboard: listening on %s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the Gin router with all routes registered.
func newRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth)
	router.GET("/api/stats", handleStats(opts))
	router.GET("/api/admins", handleAdmins(opts.Registry))
	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStats reports today's download total, the admin count and jobs
// in flight.
func handleStats(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		today := time.Now().UTC().Format("2006-01-02")
		var downloads int64
		err := opts.DB.Model(&models.DownloadCount{}).
			Where("date = ?", today).
			Select("COALESCE(SUM(count), 0)").
			Scan(&downloads).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		admins, err := opts.Registry.Count()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var active int64
		if opts.ActiveJobs != nil {
			active = opts.ActiveJobs()
		}

		c.JSON(http.StatusOK, gin.H{
			"date":            today,
			"downloads_today": downloads,
			"admins":          admins,
			"active_jobs":     active,
		})
	}
}

// handleAdmins lists durable admin chat ids.
func handleAdmins(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := reg.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if ids == nil {
			ids = []int64{}
		}
		c.JSON(http.StatusOK, gin.H{"admins": ids})
	}
}
