// Package notify mails transcription notifications to the members of a
// Cognito group.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/ses"

	"example.com/scribe/internal/transcribe"
	"example.com/scribe/pkg/logger"
)

const CharSet = "UTF-8"

var ErrNoRecipients = errors.New("notification group has no members with an email address")

type SesSendEmail interface {
	SendEmailWithContext(aws.Context, *ses.SendEmailInput, ...request.Option) (*ses.SendEmailOutput, error)
}

type CognitoListUsersInGroup interface {
	ListUsersInGroupWithContext(aws.Context, *cognitoidentityprovider.ListUsersInGroupInput, ...request.Option) (*cognitoidentityprovider.ListUsersInGroupOutput, error)
}

// Send mails body to every recipient in one message.
func Send(ctx context.Context, svc SesSendEmail, sender string, recipients []string, subject, body string) error {
	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: aws.StringSlice(recipients),
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Text: &ses.Content{
					Charset: aws.String(CharSet),
					Data:    aws.String(body),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(CharSet),
				Data:    aws.String(subject),
			},
		},
		Source: aws.String(sender),
	}

	if _, err := svc.SendEmailWithContext(ctx, input); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case ses.ErrCodeMessageRejected,
				ses.ErrCodeMailFromDomainNotVerifiedException,
				ses.ErrCodeConfigurationSetDoesNotExistException:
				return fmt.Errorf("ses rejected message (%s): %w", aerr.Code(), err)
			}
		}
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// GroupEmails lists the email attribute of every user in group.
func GroupEmails(ctx context.Context, svc CognitoListUsersInGroup, pool, group string) ([]string, error) {
	var emails []string
	input := &cognitoidentityprovider.ListUsersInGroupInput{
		UserPoolId: aws.String(pool),
		GroupName:  aws.String(group),
	}
	for {
		out, err := svc.ListUsersInGroupWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list users in group %s: %w", group, err)
		}
		for _, u := range out.Users {
			for _, attr := range u.Attributes {
				if aws.StringValue(attr.Name) == "email" && aws.StringValue(attr.Value) != "" {
					emails = append(emails, aws.StringValue(attr.Value))
				}
			}
		}
		if aws.StringValue(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	if len(emails) == 0 {
		return nil, ErrNoRecipients
	}
	return emails, nil
}

// Subject and Body render a notification for people, not machines.
func Subject(msg transcribe.Notification) string {
	if msg.Status == "FAILED" {
		return "Transcription failed: " + msg.Job
	}
	return "Transcript ready: " + msg.Job
}

func Body(msg transcribe.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcription job %s finished with status %s.\n", msg.Job, msg.Status)
	if msg.Date != "" {
		fmt.Fprintf(&b, "Recorded: %s\n", msg.Date)
	}
	if msg.Speaker != "" {
		fmt.Fprintf(&b, "Main speaker: %s\n", msg.Speaker)
	}
	if msg.TranscriptURI != "" {
		fmt.Fprintf(&b, "Transcript: %s\n", msg.TranscriptURI)
	}
	if msg.FailureReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", msg.FailureReason)
	}
	return b.String()
}

type SendEmailFunc func(ctx context.Context, recipients []string, subject, body string) error
type RecipientsFunc func(ctx context.Context) ([]string, error)

// Handler delivers the notifications of an SQS batch.
type Handler struct {
	recipients RecipientsFunc
	sendEmail  SendEmailFunc
	log        *logger.Logger
}

func NewHandler(cognito CognitoListUsersInGroup, mail SesSendEmail, pool, group, sender string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		recipients: func(ctx context.Context) ([]string, error) {
			return GroupEmails(ctx, cognito, pool, group)
		},
		sendEmail: func(ctx context.Context, recipients []string, subject, body string) error {
			return Send(ctx, mail, sender, recipients, subject, body)
		},
		log: log,
	}
}

// HandleRequest skips messages it cannot parse, since redelivery would not fix
// them. Messages whose send fails are reported as batch item failures so SQS
// redelivers only those; the event source needs ReportBatchItemFailures.
func (h *Handler) HandleRequest(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	if len(event.Records) == 0 {
		return resp, nil
	}
	recipients, err := h.recipients(ctx)
	if err != nil {
		h.log.Error("cannot resolve recipients", logger.Error(err))
		return resp, err
	}

	for _, record := range event.Records {
		log := h.log.With(logger.String("message_id", record.MessageId))
		var msg transcribe.Notification
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil || msg.Job == "" {
			log.Warn("cannot parse notification", logger.String("body", record.Body))
			continue
		}
		if err := h.sendEmail(ctx, recipients, Subject(msg), Body(msg)); err != nil {
			log.Error("cannot send notification", logger.String("job", msg.Job), logger.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		log.Info("notification sent", logger.String("job", msg.Job), logger.Int("recipients", len(recipients)))
	}
	return resp, nil
}
