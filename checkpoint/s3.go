package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/feedops/listingsync/treetypes"
)

// S3API is the narrow S3 surface the store needs. The SDK client satisfies
// it; tests provide mocks.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store persists checkpoints as a JSON object in an S3 bucket, for runs
// that must survive the loss of the host.
type S3Store struct {
	api    S3API
	bucket string
	key    string
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, key string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, key), nil
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(api S3API, bucket, key string) *S3Store {
	return &S3Store{api: api, bucket: bucket, key: key}
}

// Load implements treetypes.CheckpointStore. A missing object means no
// checkpoint exists yet.
func (s *S3Store) Load() (*treetypes.Checkpoint, error) {
	out, err := s.api.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint object body: %w", err)
	}
	var cp treetypes.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint object: %w", err)
	}
	return &cp, nil
}

// Save implements treetypes.CheckpointStore.
func (s *S3Store) Save(cp *treetypes.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = s.api.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put checkpoint object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
