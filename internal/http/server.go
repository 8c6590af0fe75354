package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/zapflow/campaignd/internal/config"
	"github.com/zapflow/campaignd/internal/http/middleware"
	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	campaignsRepo := repository.NewCampaignsRepository(mysqlDB)
	shipmentsRepo := repository.NewShipmentsRepository(mysqlDB)
	contactsRepo := repository.NewContactsRepository(mysqlDB)
	jobs := queue.NewRepository(mysqlDB)

	// repos (ClickHouse)
	auditRepo := repository.NewAuditRepository(clickhouseDB)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APITokenMiddleware(cfg.HTTP.Token)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.HTTP.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/campaigns/:id/progress", campaignProgressHandler(campaignsRepo, contactsRepo, shipmentsRepo))
	v1.POST("/shipments/:id/confirm", confirmShipmentHandler(shipmentsRepo, jobs))
	v1.GET("/reports/audit", listAuditHandler(auditRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
