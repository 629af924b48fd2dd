package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"estateBack/internal/models"
)

// S3 compatible storage for payment receipts.
type ReceiptStoreConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type ReceiptStore struct {
	client s3iface.S3API
	bucket string
}

// NewReceiptStore builds an S3 client. Static credentials are used when both
// keys are set, the default AWS chain otherwise.
func NewReceiptStore(cfg ReceiptStoreConfig) (*ReceiptStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("receipts: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg := &aws.Config{Region: aws.String(region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("receipts: new session: %w", err)
	}
	return &ReceiptStore{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

func ReceiptKey(rec models.PaymentRecord) string {
	return fmt.Sprintf("receipts/%d/%s.json", rec.ClientID, rec.Reference)
}

// PutReceipt uploads rec as JSON and returns its object key.
func (s *ReceiptStore) PutReceipt(ctx context.Context, rec models.PaymentRecord) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	key := ReceiptKey(rec)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		ACL:           aws.String(s3.ObjectCannedACLPrivate),
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload receipt to S3: %w", err)
	}
	return key, nil
}
