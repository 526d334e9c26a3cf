// Package receipts archives settled intents as JSON objects in S3-compatible
// storage and hands out short-lived download links for them.
package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/afriswift/settlement/internal/logging"
	sc "github.com/afriswift/settlement/internal/server/config"
	"github.com/afriswift/settlement/internal/server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// URLValidity is how long a presigned receipt link stays usable.
const URLValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Receipt is the archived document.
type Receipt struct {
	IntentID          string `json:"intent_id"`
	Kind              string `json:"kind"`
	SourceAccountID   string `json:"source_account_id"`
	DestinationID     string `json:"destination_account_id,omitempty"`
	ExternalDest      string `json:"external_destination,omitempty"`
	RequestedAmount   string `json:"requested_amount"`
	RequestedCurrency string `json:"requested_currency"`
	Amount            string `json:"amount"`
	Asset             string `json:"asset"`
	PayoutAmount      string `json:"payout_amount,omitempty"`
	PayoutCurrency    string `json:"payout_currency,omitempty"`
	ExternalRef       string `json:"external_ref"`
	ParentIntentID    string `json:"parent_intent_id,omitempty"`
	CreatedAt         string `json:"created_at"`
	SettledAt         string `json:"settled_at"`
}

func newReceipt(in *models.Intent) Receipt {
	r := Receipt{
		IntentID:          in.ID,
		Kind:              string(in.Kind),
		SourceAccountID:   in.SourceAccountID,
		DestinationID:     in.DestinationAccountID,
		ExternalDest:      in.ExternalDestination,
		RequestedAmount:   in.RequestedAmount.String(),
		RequestedCurrency: in.RequestedCurrency,
		Amount:            in.ResolvedAmount.String(),
		Asset:             in.AssetCode,
		PayoutCurrency:    in.PayoutCurrency,
		ExternalRef:       in.ExternalRef,
		ParentIntentID:    in.ParentIntentID,
		CreatedAt:         in.CreatedAt.UTC().Format(time.RFC3339),
		SettledAt:         in.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if in.PayoutCurrency != "" {
		r.PayoutAmount = in.PayoutAmount.String()
	}
	return r
}

// Key is the object key of an intent's receipt. It only depends on fields
// fixed at creation, so it can be recomputed from any later read.
func Key(in *models.Intent) string {
	d := in.CreatedAt.UTC()
	return fmt.Sprintf("receipts/%04d/%02d/%02d/%s.json", d.Year(), int(d.Month()), d.Day(), in.ID)
}

// Archive stores receipts in one bucket.
type Archive struct {
	bucket  string
	client  objectPutter
	presign *s3.PresignClient
	logger  logging.Logger
}

// New connects to the configured bucket. It returns nil when no bucket is
// configured, which disables archiving.
func New(ctx context.Context, cfg *sc.Config, logger logging.Logger) (*Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &Archive{
		bucket:  cfg.S3Bucket,
		client:  client,
		presign: newS3PresignClient(client),
		logger:  logger.With("module", "receipts"),
	}, nil
}

// Archive writes the receipt of a ledger-applied intent.
func (a *Archive) Archive(ctx context.Context, in *models.Intent) error {
	if in.Status != models.IntentLedgerApplied {
		return fmt.Errorf("intent %s is %s, not applied", in.ID, in.Status)
	}
	body, err := json.Marshal(newReceipt(in))
	if err != nil {
		return err
	}

	key := Key(in)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put receipt %s: %w", key, err)
	}
	a.logger.Info(ctx, "receipt archived", "intent_id", in.ID, "key", key)
	return nil
}

// URL returns a presigned GET link for the receipt of in.
func (a *Archive) URL(ctx context.Context, in *models.Intent) (string, error) {
	key := Key(in)
	req, err := presignGetObject(a.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(URLValidity))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
