// Package cloud holds the S3 operations shared by the frontend and the CLI.
package cloud

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"example.com/scribe/internal/recording"
	"example.com/scribe/internal/transcribe"
)

// PresignExpiry bounds how long handed-out URLs stay valid.
const PresignExpiry = 15 * time.Minute

// MaxRecordingSize is the largest object S3 accepts in a single PutObject.
const MaxRecordingSize = 5 << 30

type S3Presign interface {
	GetObjectRequest(*s3.GetObjectInput) (*request.Request, *s3.GetObjectOutput)
	PutObjectRequest(*s3.PutObjectInput) (*request.Request, *s3.PutObjectOutput)
}

type S3ListObjects interface {
	ListObjectsV2PagesWithContext(aws.Context, *s3.ListObjectsV2Input, func(*s3.ListObjectsV2Output, bool) bool, ...request.Option) error
}

type S3Uploader interface {
	UploadWithContext(aws.Context, *s3manager.UploadInput, ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type S3Location struct {
	Bucket string
	Key    string
}

func MakeSignedURI(svc S3Presign, loc S3Location) (string, error) {
	req, _ := svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	uri, err := req.Presign(PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign get s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return uri, nil
}

func MakeSignedPutURI(svc S3Presign, loc S3Location) (string, error) {
	req, _ := svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	uri, err := req.Presign(PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign put s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return uri, nil
}

// TranscriptLocation is where the transcript of job lives.
func TranscriptLocation(outputBucket, job string) S3Location {
	return S3Location{Bucket: outputBucket, Key: transcribe.OutputKey(job)}
}

// UploadLocation is where a recording called name has to be put to be
// transcribed. Path components in name are dropped.
func UploadLocation(bucket, name string) S3Location {
	return S3Location{Bucket: bucket, Key: recording.ObjectKey(name)}
}

type Transcript struct {
	Job          string    `json:"job"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListTranscripts returns every transcript in the output bucket.
func ListTranscripts(ctx context.Context, svc S3ListObjects, outputBucket string) ([]Transcript, error) {
	var out []Transcript
	err := svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(outputBucket),
		Prefix: aws.String(transcribe.OutputPrefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			out = append(out, Transcript{
				Job:          strings.TrimSuffix(path.Base(key), ".json"),
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list transcripts in %s: %w", outputBucket, err)
	}
	return out, nil
}

// UploadRecording puts a local file under the recordings prefix, which
// triggers the transcription Lambda. The bucket only notifies on
// s3:ObjectCreated:Put, so the file always goes up as one part.
func UploadRecording(ctx context.Context, uploader S3Uploader, bucket, fileName string) (S3Location, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return S3Location{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return S3Location{}, err
	}
	if info.Size() > MaxRecordingSize {
		return S3Location{}, fmt.Errorf("upload %s: %d bytes exceeds the single upload limit", fileName, info.Size())
	}
	partSize := info.Size()
	if partSize < s3manager.DefaultUploadPartSize {
		partSize = s3manager.DefaultUploadPartSize
	}

	loc := UploadLocation(bucket, fileName)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   file,
	}, func(u *s3manager.Uploader) {
		u.PartSize = partSize
	})
	if err != nil {
		return S3Location{}, fmt.Errorf("upload %s: %w", fileName, err)
	}
	return loc, nil
}
