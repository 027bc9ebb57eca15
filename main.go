package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/handlers"
	"santiago-a-pie/metrics"
	"santiago-a-pie/middleware"
	"santiago-a-pie/models"
	"santiago-a-pie/rabbitmq"
	"santiago-a-pie/routing"
	"santiago-a-pie/services"
	"santiago-a-pie/sosafe"
	"santiago-a-pie/version"
	"santiago-a-pie/websocket"
)

const serviceName = "santiago-a-pie"

func main() {
	// .env is optional, env vars win
	_ = godotenv.Load()

	cfg := config.Load()

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db.DB()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	ctx := context.Background()

	// Street network and comuna polygons
	streets := services.NewStreetsService(cfg, db)
	if err := streets.Load(ctx); err != nil {
		log.Fatalf("Failed to load street network: %v", err)
	}
	log.Infof("Street network ready: %d segments", streets.Index().Len())

	// Routing graph over the street network, weighted by stored scores
	graph := routing.NewGraph(streets.Index().All())
	if segScores, err := db.GetSegmentScores(ctx); err != nil {
		log.Warnf("Failed to load segment scores, routing starts neutral: %v", err)
	} else {
		graph.UpdateScores(segScores)
	}
	log.Infof("Routing graph ready: %d nodes, %d segments", graph.NodeCount(), graph.SegmentCount())

	// RabbitMQ publisher is optional
	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.ReportsExchange, cfg.ReportRoutingKey)
		if err != nil {
			log.Warnf("RabbitMQ unavailable, continuing without publishing: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	reports := services.NewReportService(cfg, db, streets, publisher)
	alerts := services.NewAlertsService(cfg, db)

	// Live broadcast over WebSocket
	hub := websocket.NewHub()
	broadcast := services.NewBroadcastService(cfg, db, hub)
	if err := broadcast.Start(); err != nil {
		log.Fatalf("Failed to start broadcast service: %v", err)
	}
	defer broadcast.Stop()

	// Periodic score recompute feeds alerts and routing weights
	scores := services.NewScoreService(cfg, db, streets)
	scores.Start(func(comunaScores []models.ComunaScore) {
		alerts.CheckScores(comunaScores)
		if segScores, err := db.GetSegmentScores(context.Background()); err == nil {
			graph.UpdateScores(segScores)
		}
	})
	defer scores.Stop()

	// SoSafe feed importer is optional
	var importer *sosafe.Importer
	if cfg.SoSafeURL != "" {
		importer = sosafe.NewImporter(cfg, db, reports)
		importer.Start()
		defer importer.Stop()
	}

	h := handlers.NewHandlers(cfg, db, hub, reports, streets, scores, alerts, graph, importer)
	router := setupRouter(cfg, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	api := router.Group("/api/v3")
	{
		// Submissions are rate limited per client IP
		api.POST("/reports", middleware.RateLimitMiddleware(30, time.Minute), h.SubmitReport)

		api.GET("/reports/by-latlng", h.GetReportsByLatLng)
		api.GET("/reports/last", h.GetLastReports)
		api.GET("/reports/listen", h.ListenReports)
		api.GET("/reports/health", h.HealthCheck)

		api.GET("/map", h.GetMap)
		api.GET("/comunas", h.GetComunas)
		api.GET("/segments", h.GetSegments)
		api.GET("/segments/render", h.RenderSegments)

		api.GET("/route/safest", h.SafestRoute)
		api.POST("/route/score", middleware.RateLimitMiddleware(60, time.Minute), h.ScoreRoute)

		authed := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))
		{
			authed.POST("/comunas/subscribe", h.Subscribe)
			authed.POST("/admin/recompute", h.TriggerRecompute)
			authed.POST("/admin/import", h.TriggerImport)
		}
	}

	router.GET("/health", h.HealthCheck)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get(serviceName))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
