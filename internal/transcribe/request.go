package transcribe

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"example.com/scribe/internal/recording"
)

const (
	LanguageCode           = transcribeservice.LanguageCodeEnUs
	MediaFormat            = transcribeservice.MediaFormatMp3
	MaxSpeakerLabels       = 4
	VocabularyFilterName   = "test-remove-um-uh"
	VocabularyFilterMethod = transcribeservice.VocabularyFilterMethodRemove

	OutputPrefix = "transcripts/"

	TagDate        = "Date"
	TagMainSpeaker = "MainSpeaker"
)

// JobParams is everything a job request is built from.
type JobParams struct {
	JobName      string
	Fields       recording.Fields
	Bucket       string
	Key          string // decoded
	OutputBucket string
}

// NewJobParams derives the job name and tag fields from an upload.
func NewJobParams(bucket, key, outputBucket string) (JobParams, error) {
	name, err := recording.JobName(key)
	if err != nil {
		return JobParams{}, err
	}
	return JobParams{
		JobName:      name,
		Fields:       recording.Parse(key),
		Bucket:       bucket,
		Key:          key,
		OutputBucket: outputBucket,
	}, nil
}

// MediaURI is the virtual-hosted URL of the uploaded object.
func MediaURI(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// OutputKey is where Transcribe writes the transcript of job.
func OutputKey(job string) string {
	return OutputPrefix + job + ".json"
}

// BuildJobRequest assembles the StartTranscriptionJob input. Both tags are
// always attached; a field that was not found in the key is sent as an empty
// value.
func BuildJobRequest(p JobParams) *transcribeservice.StartTranscriptionJobInput {
	return &transcribeservice.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(p.JobName),
		LanguageCode:         aws.String(LanguageCode),
		Media: &transcribeservice.Media{
			MediaFileUri: aws.String(MediaURI(p.Bucket, p.Key)),
		},
		MediaFormat:      aws.String(MediaFormat),
		OutputBucketName: aws.String(p.OutputBucket),
		OutputKey:        aws.String(OutputKey(p.JobName)),
		Settings: &transcribeservice.Settings{
			ShowSpeakerLabels:      aws.Bool(true),
			MaxSpeakerLabels:       aws.Int64(MaxSpeakerLabels),
			VocabularyFilterName:   aws.String(VocabularyFilterName),
			VocabularyFilterMethod: aws.String(VocabularyFilterMethod),
		},
		Tags: []*transcribeservice.Tag{
			{Key: aws.String(TagDate), Value: aws.String(p.Fields.Date)},
			{Key: aws.String(TagMainSpeaker), Value: aws.String(p.Fields.Speaker)},
		},
	}
}
