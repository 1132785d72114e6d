// Package baselinestore persists trainer-produced behavioral baselines in an
// embedded SQLite database, keyed by the process binary's hash.
//
// The store owns covariance inversion: Put recomputes the inverse exactly
// once per baseline update, so the scoring hot path never pays the O(n³)
// factorization. Get serves immutable snapshots through a TTL read cache.
package baselinestore

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// baselineRow is the persisted form of one baseline. Vectors and matrices
// are stored as JSON; n ≤ 16 keeps them small.
type baselineRow struct {
	BinaryHash    string    `gorm:"column:binary_hash;primaryKey"`
	Dim           int       `gorm:"column:dim"`
	Mean          string    `gorm:"column:mean_json"`
	Covariance    string    `gorm:"column:covariance_json"`
	InvCovariance *string   `gorm:"column:inv_covariance_json"`
	Entropy       float64   `gorm:"column:entropy"`
	SampleCount   uint64    `gorm:"column:sample_count"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (baselineRow) TableName() string {
	return "baselines"
}

// Store is the baseline repository. Safe for concurrent use.
type Store struct {
	db      *gorm.DB
	cache   *gocache.Cache
	metrics *monitoring.Metrics
	log     logger.Logger
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, cacheTTL time.Duration, metrics *monitoring.Metrics, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to open baseline database")
	}
	if err := db.AutoMigrate(&baselineRow{}); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to migrate baseline schema")
	}

	return &Store{
		db:      db,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		metrics: metrics,
		log:     log.WithComponent(constants.ComponentBaselineStore),
	}, nil
}

// Put stores a trainer-produced baseline for the given binary hash,
// computing the covariance inverse once as part of the update. The caller's
// Baseline is not mutated; a singular covariance is stored with an absent
// inverse, which scoring handles via the Euclidean fallback.
func (s *Store) Put(ctx context.Context, binaryHash string, b *anomaly.Baseline) error {
	if binaryHash == "" {
		return errors.New(errors.CodeStorage, "binary hash must not be empty")
	}
	if b == nil {
		return errors.New(errors.CodeStorage, "baseline must not be nil")
	}
	n := len(b.Mean)
	if n == 0 || n > constants.MaxFeatureDimensions {
		return errors.Newf(errors.CodeStorage,
			"baseline dimensionality must be in [1, %d], got %d", constants.MaxFeatureDimensions, n)
	}
	if b.Covariance.Dim() != n {
		return errors.Newf(errors.CodeStorage,
			"covariance matrix is %dx%d, mean vector has %d dimensions",
			b.Covariance.Dim(), b.Covariance.Dim(), n)
	}

	meanJSON, err := json.Marshal(b.Mean)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode mean vector")
	}
	covJSON, err := json.Marshal(b.Covariance)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode covariance matrix")
	}

	row := baselineRow{
		BinaryHash:  binaryHash,
		Dim:         n,
		Mean:        string(meanJSON),
		Covariance:  string(covJSON),
		Entropy:     b.Entropy,
		SampleCount: b.SampleCount,
		UpdatedAt:   time.Now().UTC(),
	}

	if inv, ok := anomaly.InvertCovariance(b.Covariance); ok {
		invJSON, err := json.Marshal(inv)
		if err != nil {
			return errors.Wrap(err, errors.CodeStorage, "failed to encode inverse covariance")
		}
		encoded := string(invJSON)
		row.InvCovariance = &encoded
	} else {
		s.log.Debug(ctx, "covariance not positive-definite, storing baseline without inverse", logger.Fields{
			"binary_hash": binaryHash,
			"dim":         n,
		})
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to persist baseline")
	}

	// Drop the stale snapshot; the next Get reloads the new one.
	s.cache.Delete(binaryHash)
	return nil
}

// Get returns the baseline snapshot for a binary hash, or (nil, nil) when
// the binary has no baseline yet. A missing baseline is an ordinary state
// for young processes; the scorer maps it to a zero score.
func (s *Store) Get(ctx context.Context, binaryHash string) (*anomaly.Baseline, error) {
	if cached, ok := s.cache.Get(binaryHash); ok {
		s.metrics.RecordBaselineCache("hit")
		return cached.(*anomaly.Baseline), nil
	}
	s.metrics.RecordBaselineCache("miss")

	var row baselineRow
	err := s.db.WithContext(ctx).First(&row, "binary_hash = ?", binaryHash).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to load baseline")
	}

	b, err := decodeRow(&row)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(binaryHash, b)
	return b, nil
}

// Delete removes a binary's baseline, e.g. after the trainer discards a
// corrupt profile.
func (s *Store) Delete(ctx context.Context, binaryHash string) error {
	if err := s.db.WithContext(ctx).Delete(&baselineRow{}, "binary_hash = ?", binaryHash).Error; err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to delete baseline")
	}
	s.cache.Delete(binaryHash)
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to resolve database handle")
	}
	return sqlDB.Close()
}

func decodeRow(row *baselineRow) (*anomaly.Baseline, error) {
	b := &anomaly.Baseline{
		Entropy:     row.Entropy,
		SampleCount: row.SampleCount,
	}
	if err := json.Unmarshal([]byte(row.Mean), &b.Mean); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to decode mean vector")
	}
	if err := json.Unmarshal([]byte(row.Covariance), &b.Covariance); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to decode covariance matrix")
	}
	if row.InvCovariance != nil {
		if err := json.Unmarshal([]byte(*row.InvCovariance), &b.InvCovariance); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "failed to decode inverse covariance")
		}
	}
	return b, nil
}
