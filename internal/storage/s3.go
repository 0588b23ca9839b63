package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minescope/backend/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds a client for the object store that parks uploaded
// document payloads between the API accepting them and the worker
// ingesting them. Queue messages carry only the object key.
func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// PutPayload stores a document payload under documents/<documentID>.json
// and returns the object key.
func PutPayload(ctx context.Context, client *s3.Client, documentID string, payload []byte) (string, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	key := fmt.Sprintf("documents/%s.json", documentID)

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload payload to S3: %w", err)
	}
	return key, nil
}

// GetPayload fetches a parked document payload by key.
func GetPayload(ctx context.Context, client *s3.Client, key string) ([]byte, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get payload from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read payload contents: %w", err)
	}
	return buf.Bytes(), nil
}

// Payloads is the parked-payload store bound to one S3 client, for callers
// that take the store as a dependency instead of a raw client.
type Payloads struct {
	client *s3.Client
}

// NewPayloads binds the payload operations to a client.
func NewPayloads(client *s3.Client) *Payloads {
	return &Payloads{client: client}
}

// Put stores a document payload and returns the object key.
func (p *Payloads) Put(ctx context.Context, documentID string, payload []byte) (string, error) {
	return PutPayload(ctx, p.client, documentID, payload)
}

// Get fetches a parked payload by key.
func (p *Payloads) Get(ctx context.Context, key string) ([]byte, error) {
	return GetPayload(ctx, p.client, key)
}

// Delete removes a parked payload.
func (p *Payloads) Delete(ctx context.Context, key string) error {
	return DeletePayload(ctx, p.client, key)
}

// DeletePayload removes a parked payload once ingestion has finished.
func DeletePayload(ctx context.Context, client *s3.Client, key string) error {
	bucket := util.GetEnv("AWS_BUCKET")
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete payload from S3: %w", err)
	}
	return nil
}
