// Package metrics provides persistent storage for host performance snapshots
// using SQLite for durability across restarts.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	perrors "github.com/rcourtman/pulse-perfmon/internal/errors"
	"github.com/rcourtman/pulse-perfmon/internal/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var nowFn = time.Now

// StoreConfig holds configuration for the metrics store
type StoreConfig struct {
	DBPath         string
	Retention      time.Duration // How long to keep rows; 0 keeps everything
	PruneInterval  time.Duration // How often retention runs when enabled
	PruneBatchSize int           // Rows deleted per statement during retention
}

// DefaultConfig returns sensible defaults for metrics storage
func DefaultConfig(dataDir string) StoreConfig {
	return StoreConfig{
		DBPath:         filepath.Join(dataDir, "performance.db"),
		PruneInterval:  time.Hour,
		PruneBatchSize: 1000,
	}
}

// Store is the append-only snapshot log. Rows are never updated in place.
type Store struct {
	db     *sql.DB
	config StoreConfig

	// Serializes the physical append
	writeMu sync.Mutex

	// Background retention worker
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewStore opens (or creates) the store file and initializes its schema.
func NewStore(config StoreConfig) (*Store, error) {
	if strings.TrimSpace(config.DBPath) == "" {
		return nil, fmt.Errorf("metrics database path is required")
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = time.Hour
	}
	if config.PruneBatchSize <= 0 {
		config.PruneBatchSize = 1000
	}

	// Ensure directory exists
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	// Open database with pragmas in DSN so every pool connection is configured
	dsn := config.DBPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	// Configure connection pool (SQLite works best with single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{
		db:     db,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if config.Retention > 0 {
		go store.retentionWorker()
	} else {
		close(store.doneCh)
	}

	log.Info().
		Str("path", config.DBPath).
		Dur("retention", config.Retention).
		Msg("Metrics store initialized")

	return store, nil
}

// initSchema creates the database schema if it doesn't exist. Safe on every start.
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			cpu_overall REAL,
			cpu_load_1 REAL,
			cpu_load_5 REAL,
			cpu_load_15 REAL,
			memory_used INTEGER,
			memory_total INTEGER,
			memory_available INTEGER,
			memory_pressure REAL,
			swap_used INTEGER,
			swap_total INTEGER,
			disk_used INTEGER,
			disk_total INTEGER,
			disk_available INTEGER,
			disk_read_bps REAL,
			disk_write_bps REAL,
			network_bytes_sent INTEGER,
			network_bytes_received INTEGER,
			network_packets_in INTEGER,
			network_packets_out INTEGER
		);

		-- Range scans and retention pruning
		CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Debug().Msg("Metrics schema initialized")
	return nil
}

// Append durably records one snapshot. perCore and temperature are not persisted.
func (s *Store) Append(ctx context.Context, snap models.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for i := 0; i < 5; i++ {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO metrics (
				timestamp, cpu_overall, cpu_load_1, cpu_load_5, cpu_load_15,
				memory_used, memory_total, memory_available, memory_pressure, swap_used, swap_total,
				disk_used, disk_total, disk_available, disk_read_bps, disk_write_bps,
				network_bytes_sent, network_bytes_received, network_packets_in, network_packets_out
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			snap.Timestamp.UnixMilli(),
			snap.CPU.Overall,
			snap.CPU.LoadAverage[0],
			snap.CPU.LoadAverage[1],
			snap.CPU.LoadAverage[2],
			int64(snap.Memory.Used),
			int64(snap.Memory.Total),
			int64(snap.Memory.Available),
			snap.Memory.Pressure,
			int64(snap.Memory.SwapUsed),
			int64(snap.Memory.SwapTotal),
			int64(snap.Disk.Used),
			int64(snap.Disk.Total),
			int64(snap.Disk.Available),
			snap.Disk.ReadBytesPerSec,
			snap.Disk.WriteBytesPerSec,
			int64(snap.Network.BytesSent),
			int64(snap.Network.BytesReceived),
			int64(snap.Network.PacketsIn),
			int64(snap.Network.PacketsOut),
		)
		if err == nil {
			break
		}
		// Retry on SQLITE_BUSY
		if i < 4 && isBusy(err) {
			time.Sleep(time.Duration(100*(i+1)) * time.Millisecond)
			continue
		}
		break
	}
	if err != nil {
		storeErrors.WithLabelValues("append").Inc()
		return perrors.WrapStoreError("append", err)
	}

	storeAppends.Inc()
	return nil
}

// QueryRange returns snapshots with start <= timestamp (<= end when end is
// non-nil), most recent first.
func (s *Store) QueryRange(ctx context.Context, start time.Time, end *time.Time) ([]models.Snapshot, error) {
	sqlQuery := `
		SELECT timestamp, cpu_overall, cpu_load_1, cpu_load_5, cpu_load_15,
			memory_used, memory_total, memory_available, memory_pressure, swap_used, swap_total,
			disk_used, disk_total, disk_available, disk_read_bps, disk_write_bps,
			network_bytes_sent, network_bytes_received, network_packets_in, network_packets_out
		FROM metrics
		WHERE timestamp >= ?`
	queryParams := []interface{}{start.UnixMilli()}
	if end != nil {
		sqlQuery += ` AND timestamp <= ?`
		queryParams = append(queryParams, end.UnixMilli())
	}
	sqlQuery += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		storeErrors.WithLabelValues("query").Inc()
		return nil, perrors.WrapStoreError("query", err)
	}
	defer rows.Close()

	snapshots := make([]models.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			storeErrors.WithLabelValues("query").Inc()
			return nil, perrors.WrapStoreError("query", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		storeErrors.WithLabelValues("query").Inc()
		return nil, perrors.WrapStoreError("query", err)
	}

	return snapshots, nil
}

// QueryWindow returns every snapshot inside the named window ending now.
func (s *Store) QueryWindow(ctx context.Context, window string) ([]models.Snapshot, error) {
	start := nowFn().Add(-ResolveWindow(window))
	return s.QueryRange(ctx, start, nil)
}

func scanSnapshot(rows *sql.Rows) (models.Snapshot, error) {
	var (
		ts                                          int64
		memUsed, memTotal, memAvail, swapUsed, swap int64
		diskUsed, diskTotal, diskAvail              int64
		netSent, netRecv, pktIn, pktOut             int64
		snap                                        models.Snapshot
	)
	err := rows.Scan(
		&ts,
		&snap.CPU.Overall, &snap.CPU.LoadAverage[0], &snap.CPU.LoadAverage[1], &snap.CPU.LoadAverage[2],
		&memUsed, &memTotal, &memAvail, &snap.Memory.Pressure, &swapUsed, &swap,
		&diskUsed, &diskTotal, &diskAvail, &snap.Disk.ReadBytesPerSec, &snap.Disk.WriteBytesPerSec,
		&netSent, &netRecv, &pktIn, &pktOut,
	)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("scan metrics row: %w", err)
	}

	snap.Timestamp = time.UnixMilli(ts)
	// Only rolled-up scalars are persisted.
	snap.CPU.PerCore = []float64{}
	snap.Memory.Used = uint64(memUsed)
	snap.Memory.Total = uint64(memTotal)
	snap.Memory.Available = uint64(memAvail)
	snap.Memory.SwapUsed = uint64(swapUsed)
	snap.Memory.SwapTotal = uint64(swap)
	snap.Disk.Used = uint64(diskUsed)
	snap.Disk.Total = uint64(diskTotal)
	snap.Disk.Available = uint64(diskAvail)
	snap.Network.BytesSent = uint64(netSent)
	snap.Network.BytesReceived = uint64(netRecv)
	snap.Network.PacketsIn = uint64(pktIn)
	snap.Network.PacketsOut = uint64(pktOut)
	return snap, nil
}

// Prune deletes rows older than cutoff in batches and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		s.writeMu.Lock()
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM metrics WHERE id IN (
				SELECT id FROM metrics WHERE timestamp < ? LIMIT ?
			)
		`, cutoff.UnixMilli(), s.config.PruneBatchSize)
		s.writeMu.Unlock()
		if err != nil {
			storeErrors.WithLabelValues("prune").Inc()
			return total, perrors.WrapStoreError("prune", err)
		}

		affected, err := result.RowsAffected()
		if err != nil || affected == 0 {
			return total, nil
		}
		total += affected
		if affected < int64(s.config.PruneBatchSize) {
			return total, nil
		}
	}
}

// retentionWorker prunes expired rows until the store is closed
func (s *Store) retentionWorker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runRetention()
		}
	}
}

func (s *Store) runRetention() {
	start := nowFn()
	deleted, err := s.Prune(context.Background(), start.Add(-s.config.Retention))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune metrics")
		return
	}
	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Dur("duration", time.Since(start)).
			Msg("Metrics retention cleanup completed")
	}
}

// StoreStats holds metrics store statistics
type StoreStats struct {
	DBPath   string    `json:"dbPath"`
	DBSize   int64     `json:"dbSize"`
	RowCount int64     `json:"rowCount"`
	Oldest   time.Time `json:"oldest,omitempty"`
	Newest   time.Time `json:"newest,omitempty"`
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{DBPath: s.config.DBPath}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM metrics`,
	).Scan(&stats.RowCount, &oldest, &newest)
	if err != nil {
		return stats, perrors.WrapStoreError("stats", err)
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = time.UnixMilli(newest.Int64)
	}

	if fi, err := os.Stat(s.config.DBPath); err == nil {
		stats.DBSize = fi.Size()
	}

	return stats, nil
}

// Close shuts down the store gracefully
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Metrics store shutdown timed out")
	}

	return s.db.Close()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
