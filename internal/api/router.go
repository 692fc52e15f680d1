package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/classifier"
	"github.com/Skufu/cardioscore/internal/predlog"
	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/session"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. Stats, Artifact
// and Checks are optional.
type Deps struct {
	Builder      *report.Builder
	Adapter      *classifier.Adapter
	Artifact     *classifier.Artifact
	Sessions     session.Store
	Stats        predlog.Store
	Checks       map[string]HealthChecker
	Gatherer     prometheus.Gatherer
	Log          logrus.FieldLogger
	MaxBodyBytes int64
	Now          func() time.Time
}

type server struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.Log = l
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStore(0)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &server{Deps: d}

	router := gin.New()
	router.Use(
		requestID(),
		requestLogger(d.Log),
		gin.Recovery(),
		limitBodySize(d.MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader, "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", s.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/schema", s.schema)
	api.GET("/model", s.model)
	api.GET("/stats", s.stats)
	api.POST("/predictions", s.predict)
	api.GET("/sessions/:id/history", s.history)
	api.POST("/sessions/:id/patients", s.savePatient)
	api.GET("/sessions/:id/patients", s.listPatients)

	return router
}

func (s *server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "model": "ok", "db": "disabled"}
	healthy := true
	if !s.Adapter.Ready() {
		body["model"] = "unavailable"
		healthy = false
	}

	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := "ok"
		if err := s.Checks[name].Ping(ctx); err != nil {
			status = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
		}
		body[name] = status
	}

	if !healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
