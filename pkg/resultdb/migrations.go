package resultdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			started_at INT NOT NULL,
			config TEXT NOT NULL,
			mean_error REAL,
			std_error REAL,
			num_videos INT NOT NULL,
			num_videos_discovered INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_run_run_id ON run (run_id);

		CREATE TABLE video(
			id INTEGER PRIMARY KEY,
			run INT NOT NULL,
			category TEXT NOT NULL,
			model TEXT NOT NULL,
			path TEXT NOT NULL,
			num_pairs_evaluated INT NOT NULL,
			num_pairs_skipped INT NOT NULL,
			skip_reasons TEXT NOT NULL,
			mean_error REAL,
			median_error REAL,
			std_error REAL,
			inlier_ratio REAL,
			num_inlier_samples INT NOT NULL,
			num_frames INT NOT NULL,
			frame_rate REAL NOT NULL,
			descriptor TEXT NOT NULL,
			sampling_rate INT NOT NULL
		);
		CREATE INDEX idx_video_run ON video (run);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE INDEX idx_video_category_model ON video (category, model);
	`))

	return migs
}
