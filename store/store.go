// Package store persists study realizations and their statistics in a sqlite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ChristopherRabotin/moorsim"
	"github.com/glebarez/sqlite"
	kitlog "github.com/go-kit/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a shared in-memory database.
const MemoryPath = "file::memory:?cache=shared"

// ErrNotFound is returned when no run matches the query.
var ErrNotFound = errors.New("run not found")

// Models lists the tables of the schema.
var Models = []interface{}{
	&RunRecord{},
	&StatisticsRecord{},
}

// RunRecord is one realization of a study.
type RunRecord struct {
	gorm.Model
	RunID      string `gorm:"size:36;uniqueIndex"`
	Study      string `gorm:"size:127;index"`
	Seed       int64
	Status     string `gorm:"size:15"`
	Error      string `gorm:"size:1023"`
	Dt         float64
	Samples    int
	Duration   float64 // Simulated time of the last committed sample (s)
	WaveHs     sql.NullFloat64
	WaveTp     sql.NullFloat64
	FinishedAt time.Time
	Statistics []StatisticsRecord `gorm:"foreignKey:RunID;references:RunID"`
}

func (*RunRecord) TableName() string {
	return "runs"
}

// StatisticsRecord is the statistics of one output channel of a run.
type StatisticsRecord struct {
	gorm.Model
	RunID       string `gorm:"size:36;index"`
	Channel     string `gorm:"size:63"`
	Samples     int
	Max         float64
	Mean        float64
	Std         float64
	Significant float64
	Tenth       float64
	Peaks       int
	SpectralHs  sql.NullFloat64
	SpectralTp  sql.NullFloat64
}

func (*StatisticsRecord) TableName() string {
	return "statistics"
}

// FromRealization converts a realization of the named study.
func FromRealization(study string, r moorsim.Realization) RunRecord {
	rec := RunRecord{RunID: r.RunID, Study: study, Seed: r.Seed, Status: moorsim.Failed.String(), FinishedAt: time.Now().UTC()}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if res := r.Result; res != nil {
		rec.Status = res.Status.String()
		rec.Dt = res.Dt
		rec.Samples = res.Len()
		if n := res.Len(); n > 0 {
			rec.Duration = res.Time[n-1]
		}
	}
	if r.Waves != nil {
		rec.WaveHs = sql.NullFloat64{Float64: r.Waves.Diagnostics.Hs, Valid: true}
		rec.WaveTp = sql.NullFloat64{Float64: r.Waves.Diagnostics.Tp, Valid: true}
	}
	for _, s := range r.Stats {
		rec.Statistics = append(rec.Statistics, FromStatistics(r.RunID, s))
	}
	return rec
}

// FromStatistics converts one channel record.
func FromStatistics(runID string, s moorsim.Statistics) StatisticsRecord {
	rec := StatisticsRecord{
		RunID:       runID,
		Channel:     s.Channel,
		Samples:     s.Samples,
		Max:         s.Max,
		Mean:        s.Mean,
		Std:         s.Std,
		Significant: s.Significant,
		Tenth:       s.Tenth,
		Peaks:       s.Peaks,
	}
	if s.Spectral != nil {
		rec.SpectralHs = sql.NullFloat64{Float64: s.Spectral.Hs, Valid: true}
		rec.SpectralTp = sql.NullFloat64{Float64: s.Spectral.Tp, Valid: true}
	}
	return rec
}

// Statistics converts the record back, without the spectral moments other than Hs and Tp.
func (r StatisticsRecord) Statistics() moorsim.Statistics {
	s := moorsim.Statistics{
		Channel:     r.Channel,
		Samples:     r.Samples,
		Max:         r.Max,
		Mean:        r.Mean,
		Std:         r.Std,
		Significant: r.Significant,
		Tenth:       r.Tenth,
		Peaks:       r.Peaks,
	}
	if r.SpectralHs.Valid {
		s.Spectral = &moorsim.WaveDiagnostics{Hs: r.SpectralHs.Float64, Tp: r.SpectralTp.Float64}
	}
	return s
}

// Store is a results database.
type Store struct {
	DB     *gorm.DB
	logger kitlog.Logger
}

// Open opens or creates the database at path and migrates the schema. An empty path opens the path of
// the environment configuration.
func Open(path string, log kitlog.Logger) (*Store, error) {
	if log == nil {
		log = kitlog.NewNopLogger()
	}
	if path == "" {
		env, err := moorsim.LoadEnvConfig(os.Getenv("MOORSIM_CONFIG"))
		if err != nil {
			return nil, err
		}
		path = env.StorePath
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open results store %s: %w", path, err)
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("could not migrate results store %s: %w", path, err)
	}
	s := &Store{DB: db, logger: kitlog.With(log, "subsys", "store")}
	s.logger.Log("level", "info", "path", path)
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save stores the realizations of a study in a single transaction.
func (s *Store) Save(study string, realizations []moorsim.Realization) error {
	if len(realizations) == 0 {
		return nil
	}
	records := make([]RunRecord, len(realizations))
	for i, r := range realizations {
		records[i] = FromRealization(study, r)
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		s.logger.Log("level", "critical", "study", study, "err", err)
		return fmt.Errorf("could not save study %s: %w", study, err)
	}
	s.logger.Log("level", "info", "study", study, "runs", len(records))
	return nil
}

// Run returns the run with its statistics in channel order.
func (s *Store) Run(runID string) (RunRecord, error) {
	var rec RunRecord
	err := s.DB.Preload("Statistics", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return rec, err
}

// Runs returns the runs of a study in seed order, without their statistics.
func (s *Store) Runs(study string) ([]RunRecord, error) {
	var recs []RunRecord
	err := s.DB.Where("study = ?", study).Order("seed").Find(&recs).Error
	return recs, err
}

// Channel returns the statistics of one channel across the runs of a study, in seed order.
func (s *Store) Channel(study, channel string) ([]StatisticsRecord, error) {
	var recs []StatisticsRecord
	err := s.DB.Joins("JOIN runs ON runs.run_id = statistics.run_id AND runs.deleted_at IS NULL").
		Where("runs.study = ? AND statistics.channel = ?", study, channel).
		Order("runs.seed").Find(&recs).Error
	return recs, err
}
