package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"example.com/scribe/internal/config"
	"example.com/scribe/internal/transcribe"
	"example.com/scribe/pkg/logger"
)

func main() {
	var cfg config.Finish
	config.MustLoad(&cfg)

	log := logger.Must(cfg.Log).Named("transcription-finish")
	defer log.Sync()

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))

	handler := transcribe.NewFinishHandler(transcribeservice.New(sess), sqs.New(sess), cfg.QueueURL, log)
	lambda.Start(handler.HandleRequest)
}
