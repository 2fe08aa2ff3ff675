// Package history persists run timing aggregates in a DuckDB database so
// successive runs of the same repository can be compared.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/chronoline/cadence/internal/history/migrate"
	"github.com/chronoline/cadence/internal/model"
)

// RunRecord is one stored run aggregate.
type RunRecord struct {
	Repo       string
	RunID      string
	RecordedAt time.Time
	Files      int
	Items      int
	Setup      time.Duration
	ItemTime   time.Duration
	Download   time.Duration
	Job        time.Duration
	Commands   map[model.CommandKind]time.Duration
}

// Store manages the history database connection.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens or creates the history database at dbPath and applies
// pending migrations. An empty dbPath opens an in-memory database.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := ""
	if dbPath != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends one run aggregate.
func (s *Store) RecordRun(ctx context.Context, run *model.RunTiming) error {
	commands := make(map[string]float64, len(run.Commands))
	for kind, d := range run.Commands {
		commands[string(kind)] = d.Seconds()
	}
	encoded, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("encoding command times: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_timings
			(repo, run_id, recorded_at, files, items, setup_s, item_s, download_s, job_s, commands)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Repo, run.RunID, time.Now().UTC(),
		run.Files, run.Items,
		run.Setup.Seconds(), run.ItemTime.Seconds(),
		run.Download.Seconds(), run.Job.Seconds(),
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf("recording run timing: %w", err)
	}

	s.logger.Debug("recorded run timing",
		zap.String("repo", run.Repo),
		zap.String("run_id", run.RunID),
		zap.Int("items", run.Items))
	return nil
}

// RecentRuns returns up to limit stored runs for repo, newest first.
func (s *Store) RecentRuns(ctx context.Context, repo string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT repo, run_id, recorded_at, files, items, setup_s, item_s, download_s, job_s, commands
		FROM run_timings
		WHERE repo = ?
		ORDER BY recorded_at DESC
		LIMIT ?`,
		repo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec                        RunRecord
			setup, item, download, job float64
			encoded                    string
		)
		if err := rows.Scan(
			&rec.Repo, &rec.RunID, &rec.RecordedAt, &rec.Files, &rec.Items,
			&setup, &item, &download, &job, &encoded,
		); err != nil {
			return nil, fmt.Errorf("scanning run history row: %w", err)
		}
		rec.Setup = secondsToDuration(setup)
		rec.ItemTime = secondsToDuration(item)
		rec.Download = secondsToDuration(download)
		rec.Job = secondsToDuration(job)

		var commands map[string]float64
		if err := json.Unmarshal([]byte(encoded), &commands); err != nil {
			return nil, fmt.Errorf("decoding command times: %w", err)
		}
		rec.Commands = make(map[model.CommandKind]time.Duration, len(commands))
		for kind, secs := range commands {
			rec.Commands[model.CommandKind(kind)] = secondsToDuration(secs)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
