package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/ses"

	"example.com/scribe/internal/config"
	"example.com/scribe/internal/notify"
	"example.com/scribe/pkg/logger"
)

func main() {
	var cfg config.Notify
	config.MustLoad(&cfg)

	log := logger.Must(cfg.Log).Named("notify")
	defer log.Sync()

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))

	handler := notify.NewHandler(
		cognitoidentityprovider.New(sess),
		ses.New(sess),
		cfg.UserPool,
		cfg.Group,
		cfg.Sender,
		log,
	)
	lambda.Start(handler.HandleRequest)
}
