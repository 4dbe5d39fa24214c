package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/card-scanner/internal/logging"
)

// Scan sources.
const (
	SourcePick    = "pick"
	SourceCapture = "capture"
)

// Scan outcomes.
const (
	OutcomeFound       = "found"
	OutcomeNotFound    = "not_found"
	OutcomeUnreachable = "unreachable"
	OutcomeFailed      = "failed"
)

// ScanRecord is one persisted scan attempt.
type ScanRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ScanID     string    `gorm:"column:scan_id;uniqueIndex;size:64" json:"scan_id"`
	Source     string    `gorm:"column:source;size:16" json:"source"`
	Operator   string    `gorm:"column:operator;size:128;index" json:"operator,omitempty"`
	Outcome    string    `gorm:"column:outcome;size:16;index" json:"outcome"`
	FieldCount int       `gorm:"column:field_count" json:"field_count"`
	Fields     string    `gorm:"column:fields;type:text" json:"fields"`
	ImageSHA1  string    `gorm:"column:image_sha1;size:40;index" json:"image_sha1"`
	Detail     string    `gorm:"column:detail;type:text" json:"detail,omitempty"`
	LatencyMs  int64     `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// Summary aggregates scan history.
type Summary struct {
	TotalScans       int64   `json:"total_scans"`
	CardsFound       int64   `json:"cards_found"`
	FoundRate        float64 `json:"found_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// ScanRepository persists scan records with gorm.
type ScanRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewScanRepository(db *gorm.DB, logger *zap.Logger) *ScanRepository {
	return &ScanRepository{
		db:             db,
		logger:         logger.Named("scan_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanRecord{})
}

// SaveScan inserts record, retrying transient failures.
func (r *ScanRepository) SaveScan(ctx context.Context, record *ScanRecord) error {
	return r.executeWithRetry(ctx, "repository.save_scan", record.ScanID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// ListRecent returns the newest records first.
func (r *ScanRepository) ListRecent(ctx context.Context, limit int) ([]*ScanRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []*ScanRecord
	err := r.executeWithRetry(ctx, "repository.list_recent", "", func() error {
		return r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Summary aggregates totals over the whole history.
func (r *ScanRepository) Summary(ctx context.Context) (*Summary, error) {
	var row struct {
		Total        int64
		Found        int64
		AverageDelay float64
	}
	err := r.executeWithRetry(ctx, "repository.summary", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ScanRecord{}).
			Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS found, COALESCE(AVG(latency_ms), 0) AS average_delay", OutcomeFound).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return buildSummary(row.Total, row.Found, row.AverageDelay), nil
}

func buildSummary(total, found int64, avgLatency float64) *Summary {
	summary := &Summary{
		TotalScans:       total,
		CardsFound:       found,
		AverageLatencyMs: avgLatency,
	}
	if total > 0 {
		summary.FoundRate = float64(found) / float64(total)
	}
	return summary
}

func (r *ScanRepository) executeWithRetry(ctx context.Context, operation, scanID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, scanID)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, scanID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, scanID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, scanID, err)
}

// IsTransientError reports whether err is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	return false
}
