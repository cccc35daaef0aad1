package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"example.com/scribe/internal/config"
	"example.com/scribe/internal/transcribe"
	"example.com/scribe/pkg/logger"
)

func main() {
	var cfg config.Start
	config.MustLoad(&cfg)

	log := logger.Must(cfg.Log).Named("start-transcription")
	defer log.Sync()

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))

	handler := transcribe.NewStartHandler(transcribeservice.New(sess), cfg.OutputBucket, log)
	lambda.Start(handler.HandleRequest)
}
