package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"example.com/scribe/internal/recording"
	"example.com/scribe/pkg/logger"
)

// StartTranscriptionJob is the part of transcribeserviceiface.TranscribeServiceAPI
// the start handler needs.
type StartTranscriptionJob interface {
	StartTranscriptionJobWithContext(aws.Context, *transcribeservice.StartTranscriptionJobInput, ...request.Option) (*transcribeservice.StartTranscriptionJobOutput, error)
}

// CallTranscribe submits one job.
func CallTranscribe(ctx context.Context, svc StartTranscriptionJob, input *transcribeservice.StartTranscriptionJobInput) error {
	_, err := svc.StartTranscriptionJobWithContext(ctx, input)
	return err
}

type StartJobFunc func(ctx context.Context, input *transcribeservice.StartTranscriptionJobInput) error

// Response is returned to the Lambda runtime. S3 invocations ignore it.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

var processingCompleted = Response{StatusCode: 200, Body: `"Processing completed"`}

// StartHandler starts a transcription job for every recording in an S3 event.
type StartHandler struct {
	startTranscribe StartJobFunc
	outputBucket    string
	log             *logger.Logger
}

func NewStartHandler(svc StartTranscriptionJob, outputBucket string, log *logger.Logger) *StartHandler {
	return newStartHandler(func(ctx context.Context, input *transcribeservice.StartTranscriptionJobInput) error {
		return CallTranscribe(ctx, svc, input)
	}, outputBucket, log)
}

func newStartHandler(start StartJobFunc, outputBucket string, log *logger.Logger) *StartHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StartHandler{startTranscribe: start, outputBucket: outputBucket, log: log}
}

// HandleRequest processes records in order. The first failed submission aborts
// the invocation; later records are left to the redelivery of the whole event.
func (h *StartHandler) HandleRequest(ctx context.Context, event events.S3Event) (Response, error) {
	log := h.log
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.WithRequestID(lc.AwsRequestID)
	}

	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			log.Error("cannot decode object key", logger.String("key", record.S3.Object.Key), logger.Error(err))
			return Response{}, fmt.Errorf("decode key %q: %w", record.S3.Object.Key, err)
		}
		rlog := log.With(logger.String("bucket", bucket), logger.String("key", key))

		if !recording.HasPrefix(key) {
			rlog.Info("skipping file not in recordings folder")
			continue
		}

		params, err := NewJobParams(bucket, key, h.outputBucket)
		if errors.Is(err, recording.ErrNoObjectName) {
			rlog.Info("skipping key without object name")
			continue
		}
		if err != nil {
			return Response{}, err
		}
		if !params.Fields.HasDate {
			rlog.Debug("no recording date in key")
		}
		if !params.Fields.HasSpeaker {
			rlog.Debug("no speaker in key")
		}

		rlog = rlog.With(logger.String("job", params.JobName))
		if err := h.startTranscribe(ctx, BuildJobRequest(params)); err != nil {
			rlog.Error("error starting transcription job", logger.Error(err))
			return Response{}, fmt.Errorf("start transcription job %s: %w", params.JobName, err)
		}
		rlog.Info("transcription job started",
			logger.String("date", params.Fields.Date),
			logger.String("speaker", params.Fields.Speaker))
	}

	return processingCompleted, nil
}
