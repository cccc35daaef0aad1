// Package backend wires the transcription function to its bucket: the
// function's role policy, the permission for S3 to invoke it, and the bucket
// notification for new recordings.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iam"
	lambdasvc "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/s3"

	"example.com/scribe/internal/recording"
	"example.com/scribe/internal/transcribe"
	"example.com/scribe/pkg/logger"
)

const (
	NotificationID = "scribe-transcribe-recordings"
	PolicyName     = "scribe-transcription"
	StatementID    = "scribe-s3-invoke"

	ObjectCreatedPut = "s3:ObjectCreated:Put"
)

// Scope names every resource the grants are limited to.
type Scope struct {
	Region       string
	AccountID    string
	SourceBucket string
	OutputBucket string
	FunctionARN  string
	RoleName     string
}

func (s Scope) Validate() error {
	var missing []string
	for _, f := range [][2]string{
		{"region", s.Region},
		{"account id", s.AccountID},
		{"source bucket", s.SourceBucket},
		{"output bucket", s.OutputBucket},
	} {
		if f[1] == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete scope, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type statement struct {
	Sid      string   `json:"Sid"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type policy struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

// PolicyDocument renders the role policy of the transcription functions,
// scoped to the recordings prefix, the transcripts prefix and this account's
// transcription jobs.
func PolicyDocument(s Scope) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	transcribeARN := fmt.Sprintf("arn:aws:transcribe:%s:%s:", s.Region, s.AccountID)
	doc := policy{
		Version: "2012-10-17",
		Statement: []statement{
			{
				Sid:      "ReadRecordings",
				Effect:   "Allow",
				Action:   []string{"s3:GetObject"},
				Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/%s*", s.SourceBucket, recording.Prefix)},
			},
			{
				Sid:      "WriteTranscripts",
				Effect:   "Allow",
				Action:   []string{"s3:PutObject"},
				Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/%s*", s.OutputBucket, transcribe.OutputPrefix)},
			},
			{
				Sid:    "TranscriptionJobs",
				Effect: "Allow",
				Action: []string{
					"transcribe:StartTranscriptionJob",
					"transcribe:GetTranscriptionJob",
					"transcribe:TagResource",
				},
				Resource: []string{
					transcribeARN + "transcription-job/*",
					transcribeARN + "vocabulary-filter/" + transcribe.VocabularyFilterName,
				},
			},
		},
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LambdaConfiguration routes PUTs under the recordings prefix to the function.
func LambdaConfiguration(s Scope) *s3.LambdaFunctionConfiguration {
	return &s3.LambdaFunctionConfiguration{
		Id:                aws.String(NotificationID),
		LambdaFunctionArn: aws.String(s.FunctionARN),
		Events:            aws.StringSlice([]string{ObjectCreatedPut}),
		Filter: &s3.NotificationConfigurationFilter{
			Key: &s3.KeyFilter{
				FilterRules: []*s3.FilterRule{
					{Name: aws.String(s3.FilterRuleNamePrefix), Value: aws.String(recording.Prefix)},
				},
			},
		},
	}
}

// MergeNotification replaces any earlier version of our configuration in cur
// and keeps everything else.
func MergeNotification(cur *s3.NotificationConfiguration, s Scope) *s3.NotificationConfiguration {
	out := &s3.NotificationConfiguration{}
	if cur != nil {
		out.QueueConfigurations = cur.QueueConfigurations
		out.TopicConfigurations = cur.TopicConfigurations
		out.EventBridgeConfiguration = cur.EventBridgeConfiguration
		for _, c := range cur.LambdaFunctionConfigurations {
			if aws.StringValue(c.Id) != NotificationID {
				out.LambdaFunctionConfigurations = append(out.LambdaFunctionConfigurations, c)
			}
		}
	}
	out.LambdaFunctionConfigurations = append(out.LambdaFunctionConfigurations, LambdaConfiguration(s))
	return out
}

type S3Notifications interface {
	GetBucketNotificationConfigurationWithContext(aws.Context, *s3.GetBucketNotificationConfigurationRequest, ...request.Option) (*s3.NotificationConfiguration, error)
	PutBucketNotificationConfigurationWithContext(aws.Context, *s3.PutBucketNotificationConfigurationInput, ...request.Option) (*s3.PutBucketNotificationConfigurationOutput, error)
}

type IamPutRolePolicy interface {
	PutRolePolicyWithContext(aws.Context, *iam.PutRolePolicyInput, ...request.Option) (*iam.PutRolePolicyOutput, error)
}

type LambdaAddPermission interface {
	AddPermissionWithContext(aws.Context, *lambdasvc.AddPermissionInput, ...request.Option) (*lambdasvc.AddPermissionOutput, error)
}

// Wirer applies a Scope. Each step is idempotent, so Apply can be re-run.
type Wirer struct {
	S3     S3Notifications
	IAM    IamPutRolePolicy
	Lambda LambdaAddPermission
	Log    *logger.Logger
}

func (w *Wirer) Apply(ctx context.Context, s Scope) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.FunctionARN == "" || s.RoleName == "" {
		return errors.New("incomplete scope, function arn and role name are required to wire")
	}
	log := w.Log
	if log == nil {
		log = logger.Nop()
	}

	doc, err := PolicyDocument(s)
	if err != nil {
		return err
	}
	if _, err := w.IAM.PutRolePolicyWithContext(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(s.RoleName),
		PolicyName:     aws.String(PolicyName),
		PolicyDocument: aws.String(doc),
	}); err != nil {
		return fmt.Errorf("put role policy on %s: %w", s.RoleName, err)
	}
	log.Info("role policy updated", logger.String("role", s.RoleName))

	_, err = w.Lambda.AddPermissionWithContext(ctx, &lambdasvc.AddPermissionInput{
		FunctionName:  aws.String(s.FunctionARN),
		StatementId:   aws.String(StatementID),
		Action:        aws.String("lambda:InvokeFunction"),
		Principal:     aws.String("s3.amazonaws.com"),
		SourceArn:     aws.String("arn:aws:s3:::" + s.SourceBucket),
		SourceAccount: aws.String(s.AccountID),
	})
	var aerr awserr.Error
	switch {
	case err == nil:
		log.Info("invoke permission added", logger.String("function", s.FunctionARN))
	case errors.As(err, &aerr) && aerr.Code() == lambdasvc.ErrCodeResourceConflictException:
		log.Info("invoke permission already present", logger.String("function", s.FunctionARN))
	default:
		return fmt.Errorf("add invoke permission: %w", err)
	}

	cur, err := w.S3.GetBucketNotificationConfigurationWithContext(ctx, &s3.GetBucketNotificationConfigurationRequest{
		Bucket: aws.String(s.SourceBucket),
	})
	if err != nil {
		return fmt.Errorf("get notification configuration of %s: %w", s.SourceBucket, err)
	}
	if _, err := w.S3.PutBucketNotificationConfigurationWithContext(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket:                    aws.String(s.SourceBucket),
		NotificationConfiguration: MergeNotification(cur, s),
	}); err != nil {
		return fmt.Errorf("put notification configuration on %s: %w", s.SourceBucket, err)
	}
	log.Info("bucket notification registered", logger.String("bucket", s.SourceBucket), logger.String("prefix", recording.Prefix))
	return nil
}
