// Package resultdb keeps the history of evaluation runs in sqlite, so that runs with
// different descriptors or sampling rates can be compared later.
package resultdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/epipolar/pkg/epipolar"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("Run not found")

type ResultDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func NewResultDB(logger logs.Log, dbFilename string) (*ResultDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &ResultDB{
		Log: logger,
		DB:  db,
	}, nil
}

func (r *ResultDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// SaveReport stores the run and all of its video rows in one transaction
func (r *ResultDB) SaveReport(report *epipolar.Report) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		run := &Run{
			RunID:               report.RunID,
			StartedAt:           dbh.MakeIntTime(report.CreatedAt),
			Config:              &dbh.JSONField[epipolar.ReportConfig]{Data: report.Config},
			MeanError:           report.GlobalSummary.MeanError,
			StdError:            report.GlobalSummary.StdError,
			NumVideos:           report.GlobalSummary.NumVideos,
			NumVideosDiscovered: report.GlobalSummary.NumVideosDiscovered,
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("Failed to save run %v: %w", report.RunID, err)
		}
		if len(report.Videos) == 0 {
			return nil
		}
		rows := make([]*Video, len(report.Videos))
		for i, v := range report.Videos {
			rows[i] = videoFromResult(run.ID, v)
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("Failed to save videos of run %v: %w", report.RunID, err)
		}
		r.Log.Infof("Saved run %v (%v videos)", report.RunID, len(rows))
		return nil
	})
}

// ListRuns returns all runs, most recent first
func (r *ResultDB) ListRuns() ([]*Run, error) {
	runs := []*Run{}
	if err := r.DB.Order("started_at DESC, id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LoadReport rebuilds the report of a run. The summaries are recomputed from the
// stored video rows, which gives the same numbers as the original report.
func (r *ResultDB) LoadReport(runID string) (*epipolar.Report, error) {
	run := Run{}
	if err := r.DB.Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrRunNotFound, runID)
		}
		return nil, err
	}
	rows := []*Video{}
	if err := r.DB.Where("run = ?", run.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	videos := make([]*epipolar.VideoResult, len(rows))
	for i, row := range rows {
		videos[i] = row.toResult()
	}
	cfg := epipolar.ReportConfig{}
	if run.Config != nil {
		cfg = run.Config.Data
	}
	report := epipolar.BuildReport(cfg, videos)
	report.RunID = run.RunID
	report.CreatedAt = run.StartedAt.Get().UTC()
	return report, nil
}

// History returns the per-run results of one video model, most recent first.
// This is how a model's score is tracked across runs with different settings.
func (r *ResultDB) History(category, model string) ([]*Video, error) {
	rows := []*Video{}
	err := r.DB.Where("category = ? AND model = ?", category, model).Order("run DESC").Find(&rows).Error
	return rows, err
}
