package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/aws/aws-sdk-go/service/transcribeservice"
	"github.com/google/go-cmp/cmp"
)

type fakeSqs struct {
	sqsiface.SQSAPI

	sent []*sqs.SendMessageInput
	err  error
}

func (f *fakeSqs) SendMessageWithContext(_ aws.Context, in *sqs.SendMessageInput, _ ...request.Option) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func stateChange(job, status string) events.CloudWatchEvent {
	detail, _ := json.Marshal(jobStateChange{TranscriptionJobName: job, TranscriptionJobStatus: status})
	return events.CloudWatchEvent{
		Source:     "aws.transcribe",
		DetailType: "Transcribe Job State Change",
		Detail:     detail,
	}
}

func completedJob(name string) *transcribeservice.TranscriptionJob {
	return &transcribeservice.TranscriptionJob{
		TranscriptionJobName:   aws.String(name),
		TranscriptionJobStatus: aws.String(transcribeservice.TranscriptionJobStatusCompleted),
		Transcript: &transcribeservice.Transcript{
			TranscriptFileUri: aws.String("https://s3.amazonaws.com/out/transcripts/" + name + ".json"),
		},
		Tags: []*transcribeservice.Tag{
			{Key: aws.String(TagDate), Value: aws.String("05-06-2024")},
			{Key: aws.String(TagMainSpeaker), Value: aws.String("Jane D.")},
		},
	}
}

func TestFinishHandlerQueuesNotification(t *testing.T) {
	svc := &fakeTranscribe{jobs: map[string]*transcribeservice.TranscriptionJob{
		"PG_05-06-2024-Jane_Doe": completedJob("PG_05-06-2024-Jane_Doe"),
	}}
	queue := &fakeSqs{}
	h := NewFinishHandler(svc, queue, "https://sqs/queue", nil)

	if err := h.HandleRequest(context.Background(), stateChange("PG_05-06-2024-Jane_Doe", "COMPLETED")); err != nil {
		t.Fatal(err)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(queue.sent))
	}
	if got := aws.StringValue(queue.sent[0].QueueUrl); got != "https://sqs/queue" {
		t.Errorf("queue url = %q", got)
	}

	var got Notification
	if err := json.Unmarshal([]byte(aws.StringValue(queue.sent[0].MessageBody)), &got); err != nil {
		t.Fatal(err)
	}
	want := Notification{
		Job:           "PG_05-06-2024-Jane_Doe",
		Status:        "COMPLETED",
		Date:          "05-06-2024",
		Speaker:       "Jane D.",
		TranscriptURI: "https://s3.amazonaws.com/out/transcripts/PG_05-06-2024-Jane_Doe.json",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%s", diff)
	}
}

func TestFinishHandlerFailedJob(t *testing.T) {
	job := &transcribeservice.TranscriptionJob{
		TranscriptionJobName:   aws.String("broken"),
		TranscriptionJobStatus: aws.String(transcribeservice.TranscriptionJobStatusFailed),
		FailureReason:          aws.String("Unsupported audio format"),
	}
	queue := &fakeSqs{}
	h := NewFinishHandler(&fakeTranscribe{jobs: map[string]*transcribeservice.TranscriptionJob{"broken": job}}, queue, "q", nil)

	if err := h.HandleRequest(context.Background(), stateChange("broken", "FAILED")); err != nil {
		t.Fatal(err)
	}
	var got Notification
	if err := json.Unmarshal([]byte(aws.StringValue(queue.sent[0].MessageBody)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "FAILED" || got.FailureReason != "Unsupported audio format" {
		t.Errorf("got %+v", got)
	}
}

func TestFinishHandlerIgnoresInProgress(t *testing.T) {
	queue := &fakeSqs{}
	h := NewFinishHandler(&fakeTranscribe{}, queue, "q", nil)

	if err := h.HandleRequest(context.Background(), stateChange("job", "IN_PROGRESS")); err != nil {
		t.Fatal(err)
	}
	if len(queue.sent) != 0 {
		t.Error("queued a notification for a running job")
	}
}

func TestFinishHandlerErrors(t *testing.T) {
	queueErr := errors.New("queue down")
	tests := []struct {
		name  string
		svc   *fakeTranscribe
		queue *fakeSqs
		event events.CloudWatchEvent
	}{
		{"bad detail", &fakeTranscribe{}, &fakeSqs{}, events.CloudWatchEvent{Detail: json.RawMessage(`[`)}},
		{"unknown job", &fakeTranscribe{}, &fakeSqs{}, stateChange("missing", "COMPLETED")},
		{"queue error", &fakeTranscribe{jobs: map[string]*transcribeservice.TranscriptionJob{"j": completedJob("j")}},
			&fakeSqs{err: queueErr}, stateChange("j", "COMPLETED")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFinishHandler(tt.svc, tt.queue, "q", nil)
			if err := h.HandleRequest(context.Background(), tt.event); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFinishHandlerEmptyDescription(t *testing.T) {
	svc := &fakeTranscribe{jobs: map[string]*transcribeservice.TranscriptionJob{"j": nil}}
	queue := &fakeSqs{}
	h := NewFinishHandler(svc, queue, "q", nil)

	err := h.HandleRequest(context.Background(), stateChange("j", "COMPLETED"))
	if !errors.Is(err, ErrJobNotDescribed) {
		t.Fatalf("err = %v, want ErrJobNotDescribed", err)
	}
	if len(queue.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(queue.sent))
	}
}
