// Package store is the sidecar checkpoint index: a small sqlite-backed
// keyed record store holding one row per indexed file, one summary row per
// file, and the checkpoints that let a Reader resume decompression
// mid-stream (spec §4.2).
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/dftracer/dftracer-utils/pkg/log"
)

var registerHookedDriverOnce sync.Once

const hookedDriverName = "sqlite3_dftracer_hooked"

// Store is a handle on one sidecar index database.
type Store struct {
	db  *sqlx.DB
	sql sq.StatementBuilderType
}

// Open opens path, creating an empty, schema-initialized store if it
// doesn't exist yet (spec §4.2, open(path)).
func Open(path string) (*Store, error) {
	registerHookedDriverOnce.Do(func() {
		sql.Register(hookedDriverName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryTimingHooks{}))
	})

	db, err := sqlx.Open(hookedDriverName, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// sqlite does not profit from concurrent writers; one connection avoids
	// SQLITE_BUSY churn under the indexer's batched inserts.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// IsSchemaValid reports whether all three tables exist with the expected
// columns.
func (s *Store) IsSchemaValid() (bool, error) { return schemaValid(s.db.DB) }

// fileIdentity stats and hashes path, returning the values FileMatches and
// InsertFile compare/store.
func fileIdentity(path string) (byteSize int64, mtime int64, sha256Hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, "", err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, 0, "", err
	}

	return info.Size(), info.ModTime().UnixNano(), hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFileIdentity exposes fileIdentity for the Indexer's build step 2
// (compute sha256/mtime before inserting a new files row).
func ComputeFileIdentity(path string) (byteSize int64, mtime int64, sha256Hex string, err error) {
	return fileIdentity(path)
}

// FileMatches reports whether gzPath's current (sha256, mtime, byte_size)
// match the stored files row for logicalName, per spec §4.2.
func (s *Store) FileMatches(logicalName, gzPath string) (bool, error) {
	f, err := s.GetFileByLogicalName(logicalName)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	size, mtime, sha, err := fileIdentity(gzPath)
	if err != nil {
		return false, err
	}
	return f.ByteSize == size && f.Mtime == mtime && f.SHA256 == sha, nil
}

// GetFileByLogicalName looks up the files row for name, returning
// sql.ErrNoRows if absent.
func (s *Store) GetFileByLogicalName(name string) (*File, error) {
	q, args, err := s.sql.Select("id", "logical_name", "byte_size", "mtime", "sha256").
		From("files").Where(sq.Eq{"logical_name": name}).ToSql()
	if err != nil {
		return nil, err
	}
	var f File
	if err := s.db.Get(&f, q, args...); err != nil {
		return nil, err
	}
	return &f, nil
}

// Tx groups a sequence of inserts into one sqlite transaction (insert
// throughput during a build is dominated by transaction count, not row
// count).
type Tx struct {
	tx *sqlx.Tx
}

func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Warnf("store: rollback: %v", err)
		return err
	}
	return nil
}

// Cleanup removes any existing files/metadata/checkpoints rows for
// logicalName (spec §4.3 step 2, "remove any existing index for this
// file"). Deleting the files row cascades via foreign keys.
func (t *Tx) Cleanup(logicalName string) error {
	_, err := t.tx.Exec(`DELETE FROM files WHERE logical_name = ?`, logicalName)
	if err != nil {
		return fmt.Errorf("store: cleanup %s: %w", logicalName, err)
	}
	return nil
}

// InsertFile inserts a new files row, returning its id.
func (t *Tx) InsertFile(f File) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO files (logical_name, byte_size, mtime, sha256) VALUES (?, ?, ?, ?)`,
		f.LogicalName, f.ByteSize, f.Mtime, f.SHA256,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert file %s: %w", f.LogicalName, err)
	}
	return res.LastInsertId()
}

// InsertMetadata inserts the one-per-file summary row.
func (t *Tx) InsertMetadata(m Metadata) error {
	_, err := t.tx.Exec(
		`INSERT INTO metadata (file_id, checkpoint_size, total_lines, total_uc_size) VALUES (?, ?, ?, ?)`,
		m.FileID, m.CheckpointSize, m.TotalLines, m.TotalUCSize,
	)
	if err != nil {
		return fmt.Errorf("store: insert metadata for file %d: %w", m.FileID, err)
	}
	return nil
}

// InsertCheckpoint inserts one checkpoint row.
func (t *Tx) InsertCheckpoint(c Checkpoint) error {
	_, err := t.tx.Exec(
		`INSERT INTO checkpoints
		 (file_id, checkpoint_idx, uc_offset, uc_size, c_offset, c_size, bits, prime_byte, dict_compressed, num_lines, last_line_num)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FileID, c.CheckpointIdx, c.UCOffset, c.UCSize, c.COffset, c.CSize, c.Bits, c.PrimeByte, c.DictCompressed, c.NumLines, c.LastLineNum,
	)
	if err != nil {
		return fmt.Errorf("store: insert checkpoint %d for file %d: %w", c.CheckpointIdx, c.FileID, err)
	}
	return nil
}

// UpdateCheckpointUCSize back-fills uc_size once the next checkpoint's
// offset (or end of stream) is known (spec §4.3 step 6).
func (t *Tx) UpdateCheckpointUCSize(fileID, checkpointIdx, ucSize int64) error {
	_, err := t.tx.Exec(
		`UPDATE checkpoints SET uc_size = ? WHERE file_id = ? AND checkpoint_idx = ?`,
		ucSize, fileID, checkpointIdx,
	)
	if err != nil {
		return fmt.Errorf("store: update checkpoint %d uc_size for file %d: %w", checkpointIdx, fileID, err)
	}
	return nil
}

// FindCheckpoint returns the checkpoint with the largest uc_offset that is
// <= targetUCOffset (spec §4.2, find_checkpoint).
func (s *Store) FindCheckpoint(fileID int64, targetUCOffset int64) (*Checkpoint, error) {
	q, args, err := s.sql.Select(checkpointColumns...).
		From("checkpoints").
		Where(sq.And{sq.Eq{"file_id": fileID}, sq.LtOrEq{"uc_offset": targetUCOffset}}).
		OrderBy("uc_offset DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	var c Checkpoint
	if err := s.db.Get(&c, q, args...); err != nil {
		return nil, err
	}
	return &c, nil
}

// QueryMaxUCBytes returns the file's total uncompressed size: from
// metadata if present, else the max(uc_offset+uc_size) across checkpoints
// (spec §4.2, query_max_uc_bytes).
func (s *Store) QueryMaxUCBytes(fileID int64) (int64, error) {
	var total sql.NullInt64
	err := s.db.Get(&total, `SELECT total_uc_size FROM metadata WHERE file_id = ?`, fileID)
	if err == nil && total.Valid {
		return total.Int64, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}

	var max sql.NullInt64
	err = s.db.Get(&max, `SELECT MAX(uc_offset + uc_size) FROM checkpoints WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// GetMetadata returns the one-per-file summary row.
func (s *Store) GetMetadata(fileID int64) (*Metadata, error) {
	var m Metadata
	err := s.db.Get(&m, `SELECT file_id, checkpoint_size, total_lines, total_uc_size FROM metadata WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

var checkpointColumns = []string{
	"file_id", "checkpoint_idx", "uc_offset", "uc_size", "c_offset",
	"c_size", "bits", "prime_byte", "dict_compressed", "num_lines", "last_line_num",
}

// GetCheckpointsByLineRange returns all checkpoints whose [last_line_num -
// num_lines + 1, last_line_num] range intersects [startLine, endLine]
// (spec §4.2/§4.4).
func (s *Store) GetCheckpointsByLineRange(fileID, startLine, endLine int64) ([]Checkpoint, error) {
	q, args, err := s.sql.Select(checkpointColumns...).
		From("checkpoints").
		Where(sq.And{
			sq.Eq{"file_id": fileID},
			sq.Expr("last_line_num - num_lines + 1 <= ?", endLine),
			sq.Expr("last_line_num >= ?", startLine),
		}).
		OrderBy("checkpoint_idx ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var cps []Checkpoint
	if err := s.db.Select(&cps, q, args...); err != nil {
		return nil, err
	}
	return cps, nil
}

// Cleanup deletes all checkpoint and metadata rows for a file (used
// outside a transaction by callers who only want to invalidate, not
// rebuild, an index).
func (s *Store) Cleanup(logicalName string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM files WHERE logical_name = ?`, logicalName)
	if err != nil {
		return fmt.Errorf("store: cleanup %s: %w", logicalName, err)
	}
	return nil
}
