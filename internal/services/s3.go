package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"industry-event-discovery/internal/models"
)

// S3Client publishes run snapshots: the admitted event list of a completed
// discovery run, as latest.json plus a timestamped backup.
type S3Client struct {
	client     *s3.Client
	bucketName string
	region     string
}

// S3UploadResult describes one completed upload.
type S3UploadResult struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
	PublicURL  string    `json:"public_url"`
}

// RunSnapshot is the JSON document uploaded per run.
type RunSnapshot struct {
	RunID       string                  `json:"runId"`
	Query       string                  `json:"query"`
	Country     string                  `json:"country"`
	DateFrom    string                  `json:"dateFrom"`
	DateTo      string                  `json:"dateTo"`
	GeneratedAt time.Time               `json:"generatedAt"`
	TotalEvents int                     `json:"totalEvents"`
	Events      []models.EventCandidate `json:"events"`
}

// NewS3Client creates an S3 client from the default AWS config chain.
func NewS3Client() (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Client{
		client:     s3.NewFromConfig(cfg),
		bucketName: envOr("S3_BUCKET_NAME", "industry-event-discovery-data"),
		region:     cfg.Region,
	}, nil
}

// UploadRunSnapshot uploads a snapshot twice: under a timestamped key for
// history and as runs/latest.json for consumers that only want the newest.
func (s *S3Client) UploadRunSnapshot(ctx context.Context, snapshot *RunSnapshot) ([]S3UploadResult, error) {
	snapshot.GeneratedAt = time.Now().UTC()
	snapshot.TotalEvents = len(snapshot.Events)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run snapshot: %w", err)
	}

	keys := []string{
		fmt.Sprintf("runs/%s/%s.json", snapshot.GeneratedAt.Format("2006-01-02"), snapshot.RunID),
		"runs/latest.json",
	}

	var results []S3UploadResult
	for _, key := range keys {
		result, err := s.uploadJSON(ctx, data, key)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	log.Printf("[SNAPSHOT] Uploaded run %s (%d events) to %d keys", snapshot.RunID, snapshot.TotalEvents, len(results))
	return results, nil
}

func (s *S3Client) uploadJSON(ctx context.Context, data []byte, key string) (*S3UploadResult, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return &S3UploadResult{
		Key:        key,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
		PublicURL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key),
	}, nil
}

// DownloadLatestSnapshot fetches runs/latest.json, if present.
func (s *S3Client) DownloadLatestSnapshot(ctx context.Context) (*RunSnapshot, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String("runs/latest.json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download latest snapshot: %w", err)
	}
	defer result.Body.Close()

	var snapshot RunSnapshot
	if err := json.NewDecoder(result.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetBucketName returns the configured bucket.
func (s *S3Client) GetBucketName() string {
	return s.bucketName
}

// envOr reads an environment variable with a default.
func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
