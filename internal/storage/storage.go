package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/investwise/internal/config"
	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/service/investment"
)

// Receipt is the archived copy of a submitted payment.
type Receipt struct {
	Payment    domain.PaymentRecord `json:"payment"`
	ArchivedAt time.Time            `json:"archived_at"`
}

// Storage archives payment receipts either on local disk or in S3.
type Storage struct {
	config config.ArchiveConfig
	aws    *AWSStorage
}

// New creates a new Storage instance for the configured archive type.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Storage, error) {
	s := &Storage{config: cfg}

	switch cfg.Type {
	case "s3":
		awsStorage, err := NewAWSStorage(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		s.aws = awsStorage

	case "local":
		if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}

	case "", "none":
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}

	return s, nil
}

// Enabled reports whether receipts are archived anywhere.
func (s *Storage) Enabled() bool {
	return s.config.Type == "s3" || s.config.Type == "local"
}

// receiptKey returns "<yyyy/mm/dd>/<user>/<utr>-<unix>.json".
func receiptKey(rec domain.PaymentRecord, at time.Time) string {
	user := rec.UserID
	if user == "" {
		user = "anonymous"
	}
	name := rec.UTR
	if rec.ID != "" {
		name = rec.ID
	}
	return fmt.Sprintf("%s/%s/%s-%d.json",
		at.UTC().Format("2006/01/02"), filepath.Base(user), filepath.Base(name), at.Unix())
}

// SaveReceipt archives rec and returns the key it was written under.
func (s *Storage) SaveReceipt(ctx context.Context, rec domain.PaymentRecord) (string, error) {
	now := time.Now()
	receipt := Receipt{Payment: rec, ArchivedAt: now.UTC()}
	key := receiptKey(rec, now)

	switch s.config.Type {
	case "s3":
		key = strings.TrimSuffix(s.config.S3Prefix, "/") + "/" + key
		key = strings.TrimPrefix(key, "/")
		return key, s.aws.SaveToS3(ctx, key, receipt)
	case "local":
		return key, s.saveToFile(key, receipt)
	default:
		return "", nil
	}
}

// Hook adapts the archive to the submission workflow. Archive failures are
// logged and never affect the submission.
func (s *Storage) Hook() investment.SubmittedHook {
	return func(ctx context.Context, rec domain.PaymentRecord) {
		key, err := s.SaveReceipt(ctx, rec)
		if err != nil {
			logger.Error("storage: archiving receipt failed", "error", err, "utr", rec.UTR)
			return
		}
		logger.Debug("storage: receipt archived", "key", key)
	}
}

// Ping checks that the archive is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	switch s.config.Type {
	case "s3":
		return s.aws.HeadBucket(ctx)
	case "local":
		_, err := os.Stat(s.config.LocalPath)
		return err
	default:
		return nil
	}
}

// saveToFile saves data to a JSON file under the local archive path
func (s *Storage) saveToFile(key string, data interface{}) error {
	path := filepath.Join(s.config.LocalPath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
