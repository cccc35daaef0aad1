package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"example.com/scribe/pkg/logger"
)

// Notification is the SQS message body sent for a finished job.
type Notification struct {
	Job           string `json:"job"`
	Status        string `json:"status"`
	Date          string `json:"date,omitempty"`
	Speaker       string `json:"speaker,omitempty"`
	TranscriptURI string `json:"transcript_uri,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// jobStateChange is the detail of a "Transcribe Job State Change" event.
type jobStateChange struct {
	TranscriptionJobName   string `json:"TranscriptionJobName"`
	TranscriptionJobStatus string `json:"TranscriptionJobStatus"`
}

type GetTranscriptionJob interface {
	GetTranscriptionJobWithContext(aws.Context, *transcribeservice.GetTranscriptionJobInput, ...request.Option) (*transcribeservice.GetTranscriptionJobOutput, error)
}

type SqsSendMessage interface {
	SendMessageWithContext(aws.Context, *sqs.SendMessageInput, ...request.Option) (*sqs.SendMessageOutput, error)
}

// SendMessageToSqs queues msg as JSON.
func SendMessageToSqs(ctx context.Context, svc SqsSendMessage, queueURL string, msg Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = svc.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		MessageBody: aws.String(string(body)),
		QueueUrl:    aws.String(queueURL),
	})
	if err != nil {
		return fmt.Errorf("send notification for %s: %w", msg.Job, err)
	}
	return nil
}

type GetJobFunc func(ctx context.Context, name string) (*transcribeservice.TranscriptionJob, error)
type PushNotificationFunc func(ctx context.Context, msg Notification) error

// ErrJobNotDescribed is returned when Transcribe answers without the job.
var ErrJobNotDescribed = errors.New("transcription job missing from response")

// FinishHandler turns terminal job state changes into notifications.
type FinishHandler struct {
	getJob           GetJobFunc
	pushNotification PushNotificationFunc
	log              *logger.Logger
}

func NewFinishHandler(svc GetTranscriptionJob, queue SqsSendMessage, queueURL string, log *logger.Logger) *FinishHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FinishHandler{
		getJob: func(ctx context.Context, name string) (*transcribeservice.TranscriptionJob, error) {
			out, err := svc.GetTranscriptionJobWithContext(ctx, &transcribeservice.GetTranscriptionJobInput{
				TranscriptionJobName: aws.String(name),
			})
			if err != nil {
				return nil, err
			}
			if out.TranscriptionJob == nil {
				return nil, ErrJobNotDescribed
			}
			return out.TranscriptionJob, nil
		},
		pushNotification: func(ctx context.Context, msg Notification) error {
			return SendMessageToSqs(ctx, queue, queueURL, msg)
		},
		log: log,
	}
}

func (h *FinishHandler) HandleRequest(ctx context.Context, event events.CloudWatchEvent) error {
	var detail jobStateChange
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return fmt.Errorf("decode job state change: %w", err)
	}
	log := h.log.With(logger.String("job", detail.TranscriptionJobName), logger.String("status", detail.TranscriptionJobStatus))

	switch detail.TranscriptionJobStatus {
	case transcribeservice.TranscriptionJobStatusCompleted, transcribeservice.TranscriptionJobStatusFailed:
	default:
		log.Info("ignoring non-terminal job state")
		return nil
	}

	job, err := h.getJob(ctx, detail.TranscriptionJobName)
	if err == nil && job == nil {
		err = ErrJobNotDescribed
	}
	if err != nil {
		log.Error("cannot describe transcription job", logger.Error(err))
		return fmt.Errorf("get transcription job %s: %w", detail.TranscriptionJobName, err)
	}

	msg := NotificationFromJob(job)
	msg.Status = detail.TranscriptionJobStatus
	if err := h.pushNotification(ctx, msg); err != nil {
		log.Error("cannot queue notification", logger.Error(err))
		return err
	}
	log.Info("notification queued")
	return nil
}

// NotificationFromJob copies the fields a reader cares about out of job.
func NotificationFromJob(job *transcribeservice.TranscriptionJob) Notification {
	msg := Notification{
		Job:           aws.StringValue(job.TranscriptionJobName),
		Status:        aws.StringValue(job.TranscriptionJobStatus),
		FailureReason: aws.StringValue(job.FailureReason),
	}
	if job.Transcript != nil {
		msg.TranscriptURI = aws.StringValue(job.Transcript.TranscriptFileUri)
	}
	for _, tag := range job.Tags {
		switch aws.StringValue(tag.Key) {
		case TagDate:
			msg.Date = aws.StringValue(tag.Value)
		case TagMainSpeaker:
			msg.Speaker = aws.StringValue(tag.Value)
		}
	}
	return msg
}
