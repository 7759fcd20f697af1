// Command api is the AWS Lambda entry point of the contract server.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jun/cote/internal/app"
	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadServer()

	logger, err := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL")})
	if err != nil {
		panic(err)
	}

	application, err := app.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}
	lambda.Start(application.HandleRequest)
}
