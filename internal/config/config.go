// Package config loads per-binary settings from the environment with cleanenv.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"example.com/scribe/pkg/logger"
)

// Start configures the Lambda that starts transcription jobs.
type Start struct {
	OutputBucket string `env:"OUTPUT_BUCKET_NAME" env-required:"true" env-description:"bucket Transcribe writes transcripts to"`
	Log          logger.Config
}

// Finish configures the Lambda that reacts to finished jobs.
type Finish struct {
	QueueURL string `env:"NOTIFY_QUEUE_URL" env-required:"true"`
	Log      logger.Config
}

// Notify configures the Lambda that mails notifications.
type Notify struct {
	UserPool string `env:"USER_POOL" env-required:"true"`
	Group    string `env:"NOTIFY_GROUP" env-default:"transcripts"`
	Sender   string `env:"EMAIL_SENDER" env-required:"true"`
	Log      logger.Config
}

// Frontend configures the presigned-URL HTTP service.
type Frontend struct {
	Port          int    `env:"PORT" env-default:"8080"`
	Region        string `env:"AWS_REGION" env-default:"us-east-1"`
	ProjectBucket string `env:"PROJECT_BUCKET" env-required:"true"`
	OutputBucket  string `env:"OUTPUT_BUCKET_NAME" env-required:"true"`
	Log           logger.Config
}

// Scribe configures the command line tool. Values come from an optional TOML
// file and are overridden by the environment.
type Scribe struct {
	Region       string `toml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	AccountID    string `toml:"account_id" env:"AWS_ACCOUNT_ID"`
	Bucket       string `toml:"bucket" env:"PROJECT_BUCKET"`
	OutputBucket string `toml:"output_bucket" env:"OUTPUT_BUCKET_NAME"`
	FunctionARN  string `toml:"function_arn" env:"TRANSCRIPTION_FUNCTION_ARN"`
	RoleName     string `toml:"role_name" env:"TRANSCRIPTION_ROLE_NAME"`
	Log          logger.Config
}

// Load reads environment variables into cfg, a pointer to one of the structs
// above.
func Load(cfg any) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}

// MustLoad is Load for main functions.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic("failed to read environment variables: " + err.Error())
	}
}

// LoadScribe reads path when it is set, then applies the environment.
func LoadScribe(path string) (*Scribe, error) {
	var cfg Scribe
	if path == "" {
		return &cfg, Load(&cfg)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return &cfg, nil
}
