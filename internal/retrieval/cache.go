package retrieval

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// EmbeddingCache persists tip embeddings in SQLite so an unchanged corpus is
// not re-embedded on every run. The cache key is the tip id plus a content
// hash, so edited tips miss and are re-embedded. Cache failures are for the
// caller to degrade on, never fatal.
type EmbeddingCache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the embedding cache at path. Pass ":memory:"
// for an in-memory cache (used by tests).
func OpenCache(path string) (*EmbeddingCache, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tip_embeddings (
		tip_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tip_id, content_hash)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tip_embeddings table: %w", err)
	}

	return &EmbeddingCache{db: db}, nil
}

// Close closes the underlying database connection.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

// Get returns the cached embedding for the given tip and content hash,
// or false on a miss.
func (c *EmbeddingCache) Get(tipID, contentHash string) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRow(
		"SELECT embedding FROM tip_embeddings WHERE tip_id = ? AND content_hash = ?",
		tipID, contentHash,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached embedding for %s: %w", tipID, err)
	}
	vec, err := decodeFloat32s(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached embedding for %s: %w", tipID, err)
	}
	return vec, true, nil
}

// Put stores the embedding for the given tip and content hash, replacing any
// stale entry for the same tip.
func (c *EmbeddingCache) Put(tipID, contentHash string, vec []float32) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cache write: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM tip_embeddings WHERE tip_id = ?", tipID); err != nil {
		tx.Rollback()
		return fmt.Errorf("evicting stale embedding for %s: %w", tipID, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO tip_embeddings (tip_id, content_hash, embedding, created_at) VALUES (?, ?, ?, ?)",
		tipID, contentHash, encodeFloat32s(vec), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("caching embedding for %s: %w", tipID, err)
	}
	return tx.Commit()
}

// Count returns the number of cached embeddings.
func (c *EmbeddingCache) Count() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM tip_embeddings").Scan(&count)
	return count, err
}

// contentHash fingerprints a tip's retrievable text.
func contentHash(situation, text string) string {
	h := sha256.Sum256([]byte(situation + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
