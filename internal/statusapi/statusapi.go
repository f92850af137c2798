// Package statusapi serves a read-only operational endpoint: worker
// watermarks and table counts. Record inspection and editing belong to
// the separate admin front-end, not here.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

// workerNames are the watermark keys reported by /status.
var workerNames = []string{"poller", "executor-sync", "dispatcher-sync", "reauth", "cleanup"}

// StartOpts holds configuration for the status server.
type StartOpts struct {
	DB   *gorm.DB
	Port int
}

// Start launches the status HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("statusapi: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts.DB)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusapi: %w", err)
	}
	return nil
}

func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, buildStatus(db))
	})
}

// Status is the /status response document.
type Status struct {
	Workers  map[string]*WorkerStatus `json:"workers"`
	Sessions int64                    `json:"sessions"`
	Current  int64                    `json:"tickets_current"`
	Done     int64                    `json:"tickets_done"`
}

// WorkerStatus reports one worker's last successful tick.
type WorkerStatus struct {
	LastTick *time.Time `json:"last_tick"`
	Age      string     `json:"age,omitempty"`
}

func buildStatus(db *gorm.DB) *Status {
	st := &Status{Workers: make(map[string]*WorkerStatus, len(workerNames))}
	for _, name := range workerNames {
		ws := &WorkerStatus{}
		if t, ok, err := store.Watermark(db, name); err == nil && ok {
			ws.LastTick = &t
			ws.Age = time.Since(t).Round(time.Second).String()
		}
		st.Workers[name] = ws
	}
	db.Model(&models.Session{}).Count(&st.Sessions)
	db.Model(&models.CurrentTicket{}).Count(&st.Current)
	db.Model(&models.DoneTicket{}).Count(&st.Done)
	return st
}
