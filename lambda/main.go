package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"spark_server/app"
	"spark_server/config"
	"spark_server/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := logging.New(cfg.Logging)

	application, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}

	lambda.Start(newProxy(application.Handler, logger).Handle)
}
