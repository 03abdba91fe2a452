package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// CheckpointName hashes (trace_paths, view_types, time_granularity) into
// the checkpoint identifier spec §4.7 step 7 describes.
func CheckpointName(tracePaths []string, viewTypes []string, timeGranularity float64) string {
	return hashParts(tracePaths, viewTypes, timeGranularity)
}

// checkpointSentinel is the file/row whose presence indicates a
// checkpoint's views are all written and safe to load (spec §6,
// "Checkpointed analyzer outputs").
const checkpointSentinel = "_checkpoint_metadata"

// CheckpointBackend persists intermediate HighLevelMetrics views as a
// self-describing columnar representation, one unit per view plus a
// completion sentinel (spec §4.7 step 7, §6).
type CheckpointBackend interface {
	// Completed reports whether name's checkpoint has a sentinel, i.e. every
	// view for it was fully written by a prior run.
	Completed(name string) (bool, error)
	LoadView(name, view string) ([]HighLevelMetrics, error)
	SaveView(name, view string, metrics []HighLevelMetrics) error
	// Finalize writes the sentinel marking name's checkpoint complete.
	Finalize(name string) error
}

// columnarView is the self-describing on-disk shape of one view's
// checkpoint: named columns so a reader can inspect the schema without the
// Go HighLevelMetrics type (spec §6: "self-describing columnar file").
type columnarView struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// columns lists the fixed scalar columns every row carries, followed by
// the dynamic bin/group/unique-set columns discovered across the rows.
func encodeColumnar(metrics []HighLevelMetrics) columnarView {
	binSet := map[string]struct{}{}
	groupSet := map[string]struct{}{}
	uniqueSet := map[string]struct{}{}
	for _, m := range metrics {
		for k := range m.BinSums {
			binSet[k] = struct{}{}
		}
		for k := range m.GroupValues {
			groupSet[k] = struct{}{}
		}
		for k := range m.UniqueSets {
			uniqueSet[k] = struct{}{}
		}
	}
	bins := sortedKeys(binSet)
	groups := sortedKeys(groupSet)
	uniques := sortedKeys(uniqueSet)

	cols := []string{"time_sum", "count_sum", "size_sum"}
	for _, b := range bins {
		cols = append(cols, "bin."+b)
	}
	for _, g := range groups {
		cols = append(cols, "group."+g)
	}
	for _, u := range uniques {
		cols = append(cols, "unique."+u)
	}

	rows := make([][]interface{}, 0, len(metrics))
	for _, m := range metrics {
		row := []interface{}{m.TimeSum, m.CountSum, m.SizeSum}
		for _, b := range bins {
			if v, ok := m.BinSums[b]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		for _, g := range groups {
			row = append(row, m.GroupValues[g])
		}
		for _, u := range uniques {
			row = append(row, sortedKeys(m.UniqueSets[u]))
		}
		rows = append(rows, row)
	}
	return columnarView{Columns: cols, Rows: rows}
}

func decodeColumnar(cv columnarView) ([]HighLevelMetrics, error) {
	idx := make(map[string]int, len(cv.Columns))
	for i, c := range cv.Columns {
		idx[c] = i
	}
	out := make([]HighLevelMetrics, 0, len(cv.Rows))
	for _, row := range cv.Rows {
		m := newHighLevelMetrics(make(map[string]string))
		if i, ok := idx["time_sum"]; ok {
			m.TimeSum, _ = toFloat(row[i])
		}
		if i, ok := idx["count_sum"]; ok {
			m.CountSum, _ = toUint(row[i])
		}
		if i, ok := idx["size_sum"]; ok {
			m.SizeSum, _ = toUint(row[i])
		}
		for col, i := range idx {
			switch {
			case hasPrefix(col, "bin."):
				if v, ok := toUint(row[i]); ok {
					m.BinSums[col[len("bin."):]] = v
				}
			case hasPrefix(col, "group."):
				if s, ok := row[i].(string); ok {
					m.GroupValues[col[len("group."):]] = s
				}
			case hasPrefix(col, "unique."):
				field := col[len("unique."):]
				set := make(map[string]struct{})
				if items, ok := row[i].([]interface{}); ok {
					for _, it := range items {
						if s, ok := it.(string); ok {
							set[s] = struct{}{}
						}
					}
				}
				m.UniqueSets[field] = set
			}
		}
		out = append(out, *m)
	}
	return out, nil
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }

func sortedKeys[M ~map[string]struct{}](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func toUint(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case float64:
		return uint64(x), true
	case uint64:
		return x, true
	default:
		return 0, false
	}
}

// FSCheckpointBackend is the default checkpoint-output backend: plain
// files under Dir (spec §4.7 step 7, "checkpoint-backend": "fs").
type FSCheckpointBackend struct {
	Dir string
}

func (b *FSCheckpointBackend) viewPath(name, view string) string {
	return filepath.Join(b.Dir, fmt.Sprintf("%s.%s.json", name, view))
}

func (b *FSCheckpointBackend) sentinelPath(name string) string {
	return filepath.Join(b.Dir, fmt.Sprintf("%s.%s", name, checkpointSentinel))
}

func (b *FSCheckpointBackend) Completed(name string) (bool, error) {
	_, err := os.Stat(b.sentinelPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *FSCheckpointBackend) LoadView(name, view string) ([]HighLevelMetrics, error) {
	raw, err := os.ReadFile(b.viewPath(name, view))
	if err != nil {
		return nil, err
	}
	var cv columnarView
	if err := json.Unmarshal(raw, &cv); err != nil {
		return nil, err
	}
	return decodeColumnar(cv)
}

func (b *FSCheckpointBackend) SaveView(name, view string, metrics []HighLevelMetrics) error {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(encodeColumnar(metrics))
	if err != nil {
		return err
	}
	return os.WriteFile(b.viewPath(name, view), raw, 0o644)
}

func (b *FSCheckpointBackend) Finalize(name string) error {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(b.sentinelPath(name), []byte("{}"), 0o644)
}

// SQLiteCheckpointBackend stores the same columnar representation as rows
// in a small sqlite database, for deployments that prefer one file over
// many (spec §4.7 step 7, "checkpoint-backend": "sqlite").
type SQLiteCheckpointBackend struct {
	db *sqlx.DB
}

func OpenSQLiteCheckpointBackend(path string) (*SQLiteCheckpointBackend, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	schema := `
CREATE TABLE IF NOT EXISTS checkpoint_views (
	checkpoint_name TEXT NOT NULL,
	view_name       TEXT NOT NULL,
	payload         TEXT NOT NULL,
	PRIMARY KEY (checkpoint_name, view_name)
);
CREATE TABLE IF NOT EXISTS checkpoint_sentinels (
	checkpoint_name TEXT PRIMARY KEY
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCheckpointBackend{db: db}, nil
}

func (b *SQLiteCheckpointBackend) Close() error { return b.db.Close() }

func (b *SQLiteCheckpointBackend) Completed(name string) (bool, error) {
	var n int
	err := b.db.Get(&n, `SELECT COUNT(*) FROM checkpoint_sentinels WHERE checkpoint_name = ?`, name)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *SQLiteCheckpointBackend) LoadView(name, view string) ([]HighLevelMetrics, error) {
	var payload string
	err := b.db.Get(&payload, `SELECT payload FROM checkpoint_views WHERE checkpoint_name = ? AND view_name = ?`, name, view)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analyzer: no sqlite checkpoint view %s/%s", name, view)
	}
	if err != nil {
		return nil, err
	}
	var cv columnarView
	if err := json.Unmarshal([]byte(payload), &cv); err != nil {
		return nil, err
	}
	return decodeColumnar(cv)
}

func (b *SQLiteCheckpointBackend) SaveView(name, view string, metrics []HighLevelMetrics) error {
	raw, err := json.Marshal(encodeColumnar(metrics))
	if err != nil {
		return err
	}
	_, err = b.db.Exec(
		`INSERT INTO checkpoint_views (checkpoint_name, view_name, payload) VALUES (?, ?, ?)
		 ON CONFLICT(checkpoint_name, view_name) DO UPDATE SET payload = excluded.payload`,
		name, view, string(raw))
	return err
}

func (b *SQLiteCheckpointBackend) Finalize(name string) error {
	_, err := b.db.Exec(`INSERT OR IGNORE INTO checkpoint_sentinels (checkpoint_name) VALUES (?)`, name)
	return err
}

// S3CheckpointBackend is the optional S3-backed checkpoint-output store
// (SPEC_FULL.md DOMAIN STACK: aws-sdk-go-v2/s3), for analyzer runs sharing
// a checkpoint cache across machines.
type S3CheckpointBackend struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func (b *S3CheckpointBackend) key(name, suffix string) string {
	return fmt.Sprintf("%s/%s.%s", b.Prefix, name, suffix)
}

func (b *S3CheckpointBackend) Completed(name string) (bool, error) {
	_, err := b.Client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(name, checkpointSentinel)),
	})
	if err != nil {
		return false, nil // NotFound and transient errors both mean "not ready"
	}
	return true, nil
}

func (b *S3CheckpointBackend) LoadView(name, view string) ([]HighLevelMetrics, error) {
	out, err := b.Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(name, view+".json")),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	var cv columnarView
	if err := json.NewDecoder(out.Body).Decode(&cv); err != nil {
		return nil, err
	}
	return decodeColumnar(cv)
}

func (b *S3CheckpointBackend) SaveView(name, view string, metrics []HighLevelMetrics) error {
	raw, err := json.Marshal(encodeColumnar(metrics))
	if err != nil {
		return err
	}
	_, err = b.Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(name, view+".json")),
		Body:   newBytesReader(raw),
	})
	return err
}

func (b *S3CheckpointBackend) Finalize(name string) error {
	_, err := b.Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(name, checkpointSentinel)),
		Body:   newBytesReader([]byte("{}")),
	})
	return err
}
