package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/papercast/internal/app"
	"github.com/apresai/papercast/internal/config"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/plays"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAPERCAST_CONFIG"), "path to YAML config")
	logBucket := flag.String("log-bucket", os.Getenv("LOG_BUCKET"), "S3 bucket holding CDN access logs")
	logPrefix := flag.String("log-prefix", "cf-logs/", "key prefix of the access logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	logger := observability.InitLogger(cfg.Telemetry.LogLevel)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *logBucket == "" {
		logger.Error("--log-bucket or LOG_BUCKET is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}
	observability.InstrumentAWS(&awsCfg)

	st, err := app.OpenStore(ctx, cfg, awsCfg)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	counter := &plays.Counter{
		S3:     s3.NewFromConfig(awsCfg),
		Store:  st,
		Bucket: *logBucket,
		Prefix: *logPrefix,
		Log:    logger,
	}
	if _, err := counter.Run(ctx); err != nil {
		logger.Error("count plays", "error", err)
		os.Exit(1)
	}
}
