package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
	asterrors "github.com/astdb-dev/astdb/internal/errors"
	"github.com/astdb-dev/astdb/internal/workspace"
)

const stateKeyDimensions = "dimensions"
const stateKeyNextLabel = "next_label"

// SQLiteStore is the MetadataStore implementation: a single SQLite
// connection (native driver when compiled with CGO and preferred, the
// pure-Go driver otherwise) limited to one open connection, with an
// in-process RWMutex giving writers exclusive access and letting readers
// share it.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	backend string
	lock    *workspace.Lock

	dims int
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a metadata store at path with the
// portable driver and no workspace lock. An empty path opens an in-memory
// store, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	s := &SQLiteStore{path: path}
	if err := s.Initialize(context.Background(), Config{Path: path}); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize opens the database, picking the native backend when
// requested and compiled in, falling back to the portable backend
// otherwise — the same graceful-degradation shape as grammar.Registry.
func (s *SQLiteStore) Initialize(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if cfg.LockPath != "" {
		lock := workspace.NewLock(cfg.LockPath)
		acquired, err := lock.TryLock()
		if err != nil {
			return err
		}
		if !acquired {
			return asterrors.AlreadyExists("workspace already locked by another process: " + cfg.LockPath)
		}
		s.lock = lock
	}

	var db *sql.DB
	var backend string
	var err error

	if cfg.PreferNative && nativeAvailable {
		if db, err = openNative(cfg.Path); err == nil {
			backend = "native"
		}
	}
	if db == nil {
		db, err = openPortable(cfg.Path)
		if err != nil {
			s.releaseLockLocked()
			return asterrors.New(asterrors.ErrCodeFileSystem, "open metadata store", err)
		}
		backend = "portable"
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		s.releaseLockLocked()
		return asterrors.New(asterrors.ErrCodeCorruptMetadata, "initialize schema", err)
	}

	s.db = db
	s.backend = backend
	s.path = cfg.Path

	if cfg.Dimensions > 0 {
		existing, ok, err := s.getState(ctx, stateKeyDimensions)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.setState(ctx, stateKeyDimensions, strconv.Itoa(cfg.Dimensions)); err != nil {
				return err
			}
			s.dims = cfg.Dimensions
		} else {
			n, _ := strconv.Atoi(existing)
			s.dims = n
		}
	}

	return nil
}

// OpenConnection opens a SQLite connection at path using the same
// native/portable graceful-degradation and pragma discipline as the
// metadata store, without applying the metadata schema — callers (e.g.
// internal/cache's L3 tier) own their own schema. Returns the backend
// name ("native" or "portable") actually used.
func OpenConnection(path string, preferNative bool) (*sql.DB, string, error) {
	if preferNative && nativeAvailable {
		if db, err := openNative(path); err == nil {
			return db, "native", nil
		}
	}
	db, err := openPortable(path)
	if err != nil {
		return nil, "", asterrors.New(asterrors.ErrCodeFileSystem, "open sqlite connection", err)
	}
	return db, "portable", nil
}

func (s *SQLiteStore) getState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) setState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteStore) nextLabel(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = ?`, stateKeyNextLabel).Scan(&value)
	var next uint64
	if err == sql.ErrNoRows {
		next = 0
	} else if err != nil {
		return 0, err
	} else {
		n, _ := strconv.ParseUint(value, 10, 64)
		next = n
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO store_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, stateKeyNextLabel, strconv.FormatUint(next+1, 10))
	if err != nil {
		return 0, err
	}
	return next, nil
}

// InsertVector assigns node a dense label and persists it alongside its
// embedding. Fails DuplicateNodeId if node.NodeID already exists, and
// DimensionMismatch if the store's dimension was fixed and differs.
func (s *SQLiteStore) InsertVector(ctx context.Context, item VectorInsert) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(ctx, item)
}

func (s *SQLiteStore) insertLocked(ctx context.Context, item VectorInsert) (uint64, error) {
	if s.dims > 0 && len(item.Embedding) != s.dims {
		return 0, asterrors.DimensionMismatch(s.dims, len(item.Embedding))
	}
	if s.dims == 0 && len(item.Embedding) > 0 {
		s.dims = len(item.Embedding)
		_ = s.setState(ctx, stateKeyDimensions, strconv.Itoa(s.dims))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE node_id = ?`, item.NodeID).Scan(&exists); err == nil {
		return 0, asterrors.DuplicateNodeID(item.NodeID)
	} else if err != sql.ErrNoRows {
		return 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	label, err := s.nextLabel(ctx, tx)
	if err != nil {
		return 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	metaJSON, err := json.Marshal(item.Node.Metadata)
	if err != nil {
		return 0, asterrors.New(asterrors.ErrCodeInvalidConfig, "marshal node metadata", err)
	}
	childrenJSON, err := json.Marshal(item.Node.ChildrenIDs)
	if err != nil {
		return 0, asterrors.New(asterrors.ErrCodeInvalidConfig, "marshal node children", err)
	}

	now := time.Now()
	n := item.Node
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (
			node_id, label, kind, name, file_path,
			start_line, start_column, start_byte,
			end_line, end_column, end_byte,
			source_text, significance, metadata_json, parent_id, children_json, embedding,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.NodeID, label, string(n.Kind), n.Name, n.FilePath,
		n.Start.Line, n.Start.Column, n.Start.Byte,
		n.End.Line, n.End.Column, n.End.Byte,
		n.SourceText, int(n.Significance), string(metaJSON), n.ParentID, string(childrenJSON), encodeEmbedding(item.Embedding),
		now, now,
	)
	if err != nil {
		return 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	return label, nil
}

// InsertVectors is best-effort: each item commits or fails independently,
// and a failure does not prevent the remaining items from being tried.
func (s *SQLiteStore) InsertVectors(ctx context.Context, items []VectorInsert) (BatchResult, error) {
	var result BatchResult
	for _, item := range items {
		if _, err := s.InsertVector(ctx, item); err != nil {
			result.FailureCount++
			result.Failures = append(result.Failures, ItemError{NodeID: item.NodeID, Err: err})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func (s *SQLiteStore) GetVector(ctx context.Context, nodeID string) (*ast.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT label, name, file_path, start_line, significance, embedding, created_at
		FROM nodes WHERE node_id = ?
	`, nodeID)

	var label uint64
	var name, filePath string
	var startLine, significance int
	var embeddingBlob []byte
	var createdAt time.Time
	if err := row.Scan(&label, &name, &filePath, &startLine, &significance, &embeddingBlob, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, asterrors.NotFound(nodeID)
		}
		return nil, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	return &ast.VectorRecord{
		NodeID:    nodeID,
		Label:     label,
		Embedding: decodeEmbedding(embeddingBlob),
		Metadata: ast.VectorMetadata{
			Signature: name,
			FileID:    filePath,
			FilePath:  filePath,
			Line:      startLine,
		},
		InsertedAt: createdAt,
	}, nil
}

func (s *SQLiteStore) GetVectors(ctx context.Context, nodeIDs []string) (map[string]*ast.VectorRecord, error) {
	out := make(map[string]*ast.VectorRecord, len(nodeIDs))
	for _, id := range nodeIDs {
		rec, err := s.GetVector(ctx, id)
		if err != nil {
			if asterrors.GetCode(err) == asterrors.ErrCodeNotFound {
				continue
			}
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

// UpdateVector fails NotFound if the node doesn't exist. A nil Embedding
// leaves the stored vector unchanged; a nil Metadata patch field leaves
// that field unchanged — true field-by-field merge, not a whole-row
// overwrite.
func (s *SQLiteStore) UpdateVector(ctx context.Context, update VectorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	defer func() { _ = tx.Rollback() }()

	var name, metaJSON string
	var significance int
	var embeddingBlob []byte
	err = tx.QueryRowContext(ctx, `
		SELECT name, significance, metadata_json, embedding FROM nodes WHERE node_id = ?
	`, update.NodeID).Scan(&name, &significance, &metaJSON, &embeddingBlob)
	if err == sql.ErrNoRows {
		return asterrors.NotFound(update.NodeID)
	}
	if err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	var meta ast.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return asterrors.New(asterrors.ErrCodeCorruptMetadata, "unmarshal stored metadata", err)
	}
	applyPatch(&meta, update.Metadata)

	newMetaJSON, err := json.Marshal(meta)
	if err != nil {
		return asterrors.New(asterrors.ErrCodeInvalidConfig, "marshal node metadata", err)
	}

	if update.Name != nil {
		name = *update.Name
	}
	if update.Significance != nil {
		significance = int(*update.Significance)
	}
	if update.Embedding != nil {
		if s.dims > 0 && len(update.Embedding) != s.dims {
			return asterrors.DimensionMismatch(s.dims, len(update.Embedding))
		}
		embeddingBlob = encodeEmbedding(update.Embedding)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE nodes SET name = ?, significance = ?, metadata_json = ?, embedding = ?, updated_at = ?
		WHERE node_id = ?
	`, name, significance, string(newMetaJSON), embeddingBlob, time.Now(), update.NodeID)
	if err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	return wrapFS(tx.Commit())
}

// wrapFS wraps a possibly-nil error as ErrCodeFileSystem, returning a true
// nil error (not a nil *Error boxed in a non-nil error interface) when err
// is nil — asterrors.Wrap only returns *Error, so a direct
// `return asterrors.Wrap(...)` against an `error`-typed return value would
// otherwise always compare non-nil.
func wrapFS(err error) error {
	if err == nil {
		return nil
	}
	return asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
}

func applyPatch(meta *ast.Metadata, patch *MetadataPatch) {
	if patch == nil {
		return
	}
	if patch.Language != nil {
		meta.Language = *patch.Language
	}
	if patch.Scope != nil {
		meta.Scope = *patch.Scope
	}
	if patch.Modifiers != nil {
		meta.Modifiers = *patch.Modifiers
	}
	if patch.Docstring != nil {
		meta.Docstring = *patch.Docstring
	}
	if patch.Imports != nil {
		meta.Imports = *patch.Imports
	}
	if patch.Exports != nil {
		meta.Exports = *patch.Exports
	}
	if patch.Annotations != nil {
		meta.Annotations = *patch.Annotations
	}
	if patch.LanguageSpecific != nil {
		meta.LanguageSpecific = *patch.LanguageSpecific
	}
}

// DeleteVector removes the node's row. Labels are never reused: the
// next_label counter in store_state is untouched, so a later insert
// never collides with a tombstoned one.
func (s *SQLiteStore) DeleteVector(ctx context.Context, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return false, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetLabelMappings(ctx context.Context) (ast.LabelMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping := ast.LabelMapping{
		NodeToLabel: make(map[string]uint64),
		LabelToNode: make(map[uint64]string),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT node_id, label FROM nodes`)
	if err != nil {
		return mapping, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		var label uint64
		if err := rows.Scan(&nodeID, &label); err != nil {
			return mapping, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
		}
		mapping.NodeToLabel[nodeID] = label
		mapping.LabelToNode[label] = nodeID
	}

	if value, ok, err := s.getState(ctx, stateKeyNextLabel); err == nil && ok {
		n, _ := strconv.ParseUint(value, 10, 64)
		mapping.NextLabel = n
	}

	return mapping, rows.Err()
}

func (s *SQLiteStore) GetSearchMetadata(ctx context.Context, nodeIDs []string) (map[string]ast.VectorMetadata, error) {
	out := make(map[string]ast.VectorMetadata, len(nodeIDs))
	for _, id := range nodeIDs {
		node, err := s.GetNode(ctx, id)
		if err != nil {
			if asterrors.GetCode(err) == asterrors.ErrCodeNotFound {
				continue
			}
			return nil, err
		}
		out[id] = ast.VectorMetadata{
			Signature:   node.Name,
			Summary:     node.Metadata.Docstring,
			FileID:      node.FilePath,
			FilePath:    node.FilePath,
			Line:        node.Start.Line,
			Confidence:  1,
			LastUpdated: time.Now().Round(0),
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, nodeID string) (*ast.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT kind, name, file_path, start_line, start_column, start_byte,
		       end_line, end_column, end_byte, source_text, significance, metadata_json,
		       parent_id, children_json
		FROM nodes WHERE node_id = ?
	`, nodeID)

	var kind, name, filePath, sourceText, metaJSON, parentID, childrenJSON string
	var sl, sc, sb, el, ec, eb, significance int
	if err := row.Scan(&kind, &name, &filePath, &sl, &sc, &sb, &el, &ec, &eb, &sourceText, &significance, &metaJSON, &parentID, &childrenJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, asterrors.NotFound(nodeID)
		}
		return nil, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	var meta ast.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, asterrors.New(asterrors.ErrCodeCorruptMetadata, "unmarshal stored metadata", err)
	}
	var childrenIDs []string
	if err := json.Unmarshal([]byte(childrenJSON), &childrenIDs); err != nil {
		return nil, asterrors.New(asterrors.ErrCodeCorruptMetadata, "unmarshal node children", err)
	}

	return &ast.Node{
		ID:           nodeID,
		Kind:         ast.Kind(kind),
		Name:         name,
		FilePath:     filePath,
		Start:        ast.Position{Line: sl, Column: sc, Byte: sb},
		End:          ast.Position{Line: el, Column: ec, Byte: eb},
		SourceText:   sourceText,
		Metadata:     meta,
		Significance: ast.Significance(significance),
		ParentID:     parentID,
		ChildrenIDs:  childrenIDs,
	}, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return Stats{}, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	var sizeBytes int64
	var lastModified time.Time
	if s.path != "" && s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			sizeBytes = info.Size()
			lastModified = info.ModTime()
		}
	}

	return Stats{
		NodeCount:    count,
		Dimensions:   s.dims,
		SizeBytes:    sizeBytes,
		LastModified: lastModified,
		Backend:      s.backend,
	}, nil
}

func (s *SQLiteStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLockLocked()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// releaseLockLocked releases the workspace advisory lock, if one was
// acquired. Callers must hold s.mu.
func (s *SQLiteStore) releaseLockLocked() {
	if s.lock == nil {
		return
	}
	_ = s.lock.Unlock()
	s.lock = nil
}

func (s *SQLiteStore) GetFileDigest(ctx context.Context, path string) (FileDigestRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var contentHash, nodeIDsJSON string
	var lastParsedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, last_parsed_at, node_ids_json FROM file_digests WHERE path = ?
	`, path).Scan(&contentHash, &lastParsedAt, &nodeIDsJSON)
	if err == sql.ErrNoRows {
		return FileDigestRecord{}, false, nil
	}
	if err != nil {
		return FileDigestRecord{}, false, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}

	var nodeIDs []string
	if err := json.Unmarshal([]byte(nodeIDsJSON), &nodeIDs); err != nil {
		return FileDigestRecord{}, false, asterrors.New(asterrors.ErrCodeCorruptMetadata, "unmarshal digest node ids", err)
	}

	return FileDigestRecord{
		Path:         path,
		ContentHash:  contentHash,
		LastParsedAt: lastParsedAt,
		NodeIDs:      nodeIDs,
	}, true, nil
}

func (s *SQLiteStore) SaveFileDigest(ctx context.Context, digest FileDigestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeIDsJSON, err := json.Marshal(digest.NodeIDs)
	if err != nil {
		return asterrors.New(asterrors.ErrCodeInvalidConfig, "marshal digest node ids", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_digests (path, content_hash, last_parsed_at, node_ids_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			last_parsed_at = excluded.last_parsed_at,
			node_ids_json = excluded.node_ids_json
	`, digest.Path, digest.ContentHash, digest.LastParsedAt, string(nodeIDsJSON))
	return wrapFS(err)
}

func (s *SQLiteStore) DeleteFileDigest(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_digests WHERE path = ?`, path)
	return wrapFS(err)
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
