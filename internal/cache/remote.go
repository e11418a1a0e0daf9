package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is a slow-tier record: the encoded value plus when it was written.
// The timestamp travels with the value so TTL judgement stays with the
// fast tier after rehydration.
type Entry struct {
	Value     json.RawMessage
	WrittenAt time.Time
}

// RemoteStore is the slow tier. Implementations fetch a batch of keys and
// return whatever subset exists; absent keys are simply omitted from the
// result, never errors.
type RemoteStore interface {
	FetchBatch(ctx context.Context, kind Kind, keys []string) (map[string]Entry, error)
}

// remoteRecord is the msgpack wire format of a slow-tier object.
type remoteRecord struct {
	Value     []byte `msgpack:"v"`
	WrittenAt int64  `msgpack:"t"`
}

// S3Store reads slow-tier records from an S3-compatible bucket (R2 works via
// a custom endpoint). Objects live under "<kind>/<key>".
type S3Store struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// S3Config carries the credentials and location of the slow-tier bucket.
type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Store builds a slow-tier reader against the configured bucket.
func NewS3Store(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		// R2 and most S3-compatible stores accept the auto region.
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load remote store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		log:    log.With().Str("component", "remote_cache").Logger(),
	}, nil
}

// FetchBatch retrieves the requested keys from the bucket. Missing objects
// and undecodable records are skipped; only transport-level failures on the
// first object abort the batch (later per-key failures are logged and the
// partial result returned, so one bad object cannot sink a whole batch).
func (s *S3Store) FetchBatch(ctx context.Context, kind Kind, keys []string) (map[string]Entry, error) {
	found := make(map[string]Entry, len(keys))

	for i, key := range keys {
		entry, err := s.fetch(ctx, kind, key)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return found, err
			}
			if i == 0 && len(found) == 0 {
				return nil, fmt.Errorf("remote fetch for %s/%s failed: %w", kind, key, err)
			}
			s.log.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Remote fetch failed, skipping key")
			continue
		}
		if entry != nil {
			found[key] = *entry
		}
	}

	return found, nil
}

// fetch returns (nil, nil) when the object does not exist or cannot be decoded.
func (s *S3Store) fetch(ctx context.Context, kind Kind, key string) (*Entry, error) {
	objectKey := fmt.Sprintf("%s/%s", kind, key)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}

	var record remoteRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		s.log.Warn().Err(err).Str("object", objectKey).Msg("Undecodable remote record, skipping")
		return nil, nil
	}
	if !json.Valid(record.Value) {
		s.log.Warn().Str("object", objectKey).Msg("Remote record carries invalid payload, skipping")
		return nil, nil
	}

	return &Entry{
		Value:     json.RawMessage(record.Value),
		WrittenAt: time.Unix(record.WrittenAt, 0),
	}, nil
}

// EncodeRecord packs a value and timestamp into the slow-tier wire format.
// Exposed for the ingestion tooling that populates the bucket.
func EncodeRecord(value json.RawMessage, writtenAt time.Time) ([]byte, error) {
	return msgpack.Marshal(remoteRecord{
		Value:     []byte(value),
		WrittenAt: writtenAt.Unix(),
	})
}
