package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"imgcruncher/config"
	"imgcruncher/cruncher"
	"imgcruncher/metrics"
	"imgcruncher/routes"
	"imgcruncher/storage"
)

var logger *zap.Logger

func main() {
	logger, _ = zap.NewProduction()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			log.Println(err)
		}
	}(logger)

	config, err := config.Load()
	if err != nil {
		logger.Fatal(err.Error())
	}

	cache, err := storage.NewResultCache(storage.CacheOptions{
		NumCounters: config.CacheNumCounters,
		MaxCost:     config.CacheMaxCost,
		BufferItems: config.CacheBufferItems,
		TTL:         time.Duration(config.CacheTTL) * time.Second,
	})
	if err != nil {
		logger.Fatal(err.Error())
	}
	defer cache.Close()

	s3cache, err := storage.NewS3Cache(storage.S3Options{
		Endpoint:  config.S3.Endpoint,
		AccessKey: config.S3.AccessKey,
		SecretKey: config.S3.SecretKey,
		Bucket:    config.S3.Bucket,
		Prefix:    config.S3.Prefix,
		UseSSL:    config.S3.UseSSL,
	})
	if err != nil {
		logger.Fatal(err.Error())
	}
	s3cache.Enabled = s3cache.Enabled && config.S3.Enabled

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	constLabels := prometheus.Labels{"service": "imgcruncher"}
	counters := metrics.InitializeMetrics(registry, constLabels)
	perf := metrics.InitializePerformanceMetrics(registry, constLabels)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Prefork:               config.Prefork,
		BodyLimit:             config.BodyLimit,
	})

	if *config.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	app.Use(healthcheck.New())
	app.Use(compress.New())

	crunch := cruncher.New(logger, cruncher.Config{
		Quality:          config.Crunch.Quality,
		MaxWidth:         config.Crunch.MaxWidth,
		MaxHeight:        config.Crunch.MaxHeight,
		MaxInputBytes:    config.Crunch.MaxInputMB * 1024 * 1024,
		MaxSourcePixels:  config.Crunch.MaxSourcePixels,
		MaxSurfacePixels: config.Crunch.MaxSurfacePixels,
		DecodeTimeout:    config.Crunch.DecodeTimeout,
	}, perf, counters)

	routes.RegisterImageRoutes(app, &routes.Handler{
		Logger:   logger,
		Config:   &config,
		Cruncher: crunch,
		Cache:    cache,
		S3Cache:  s3cache,
		Counters: counters,
		Perf:     perf,
	})

	logger.Info("server starting", zap.String("address", config.Address), zap.Bool("s3cache", s3cache.Enabled))

	if err := app.Listen(config.Address); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
