package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iam"
	lambdasvc "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/spf13/cobra"

	"example.com/scribe/internal/backend"
	"example.com/scribe/internal/cloud"
	"example.com/scribe/internal/config"
	"example.com/scribe/internal/recording"
	"example.com/scribe/internal/transcribe"
	"example.com/scribe/pkg/logger"
)

const defaultConfigFile = "scribe.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	cfg        *config.Scribe
	log        *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "scribe",
		Short:         "Upload meeting recordings and manage their transcription backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./"+defaultConfigFile+" when present)")

	root.AddCommand(
		c.uploadCmd(),
		c.parseCmd(),
		c.policyCmd(),
		c.wireCmd(),
	)
	return root
}

func (c *cli) load(logOut io.Writer) error {
	path := c.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.LoadScribe(path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	if c.cfg.Log.Format == "json" {
		c.cfg.Log.Format = "console"
	}
	c.log, err = logger.NewTo(logOut, c.cfg.Log)
	return err
}

func (c *cli) session() (*session.Session, error) {
	return session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(c.cfg.Region)},
		SharedConfigState: session.SharedConfigEnable,
	})
}

func (c *cli) scope() backend.Scope {
	return backend.Scope{
		Region:       c.cfg.Region,
		AccountID:    c.cfg.AccountID,
		SourceBucket: c.cfg.Bucket,
		OutputBucket: c.cfg.OutputBucket,
		FunctionARN:  c.cfg.FunctionARN,
		RoleName:     c.cfg.RoleName,
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload recordings under " + recording.Prefix + ", which starts their transcription",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Bucket == "" {
				return errors.New("no bucket configured")
			}
			sess, err := c.session()
			if err != nil {
				return err
			}
			uploader := s3manager.NewUploader(sess)
			for _, file := range args {
				loc, err := cloud.UploadRecording(cmd.Context(), uploader, c.cfg.Bucket, file)
				if err != nil {
					return err
				}
				c.log.Info("uploaded", logger.String("file", file), logger.String("key", loc.Key))
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", loc.Bucket, loc.Key)
			}
			return nil
		},
	}
}

func (c *cli) parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse KEY",
		Short: "Show the transcription job an object key would start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !recording.HasPrefix(key) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is outside %s and would be skipped\n", key, recording.Prefix)
				return nil
			}
			params, err := transcribe.NewJobParams(c.cfg.Bucket, key, c.cfg.OutputBucket)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), transcribe.BuildJobRequest(params).String())
			return nil
		},
	}
}

func (c *cli) policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the role policy of the transcription function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := backend.PolicyDocument(c.scope())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

func (c *cli) wireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wire",
		Short: "Grant the function its policy and register it for new recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := c.session()
			if err != nil {
				return err
			}
			w := &backend.Wirer{
				S3:     s3.New(sess),
				IAM:    iam.New(sess),
				Lambda: lambdasvc.New(sess),
				Log:    c.log,
			}
			return w.Apply(cmd.Context(), c.scope())
		},
	}
}
