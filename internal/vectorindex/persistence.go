package vectorindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// formatVersion is the index.bin header version this package writes and
// the only one it will load. A future incompatible change to the header
// or graph payload bumps this and rejects older files with
// IndexFormatIncompatible rather than guessing at their layout.
const formatVersion uint32 = 1

var magic = [4]byte{'A', 'S', 'T', 'X'}

const headerSize = 64

func spaceCode(s Space) uint8 {
	switch s {
	case SpaceCosine:
		return 0
	case SpaceL2:
		return 1
	case SpaceIP:
		return 2
	default:
		return 0
	}
}

func spaceFromCode(c uint8) (Space, error) {
	switch c {
	case 0:
		return SpaceCosine, nil
	case 1:
		return SpaceL2, nil
	case 2:
		return SpaceIP, nil
	default:
		return "", fmt.Errorf("unknown space code %d", c)
	}
}

// Meta is the decoded form of index.meta.json: the label mapping's high
// water mark plus the parameters the index was built with, kept alongside
// index.bin so a reader can validate compatibility without parsing the
// binary header first.
type Meta struct {
	Version    uint32    `json:"version"`
	Dimensions uint32    `json:"dimensions"`
	Space      string    `json:"space"`
	Count      uint64    `json:"count"`
	NextLabel  uint64    `json:"next_label"`
	LastSaved  time.Time `json:"last_saved"`
}

// Save writes the graph to indexPath (versioned binary header + coder/hnsw
// payload) and the sidecar index.meta.json to metaPath, both via
// temp-file-then-rename so a crash mid-write never leaves a half-written
// file at the final path. labelWatermark is the metadata store's next
// unassigned label, recorded so a loader can resume label allocation
// without rescanning the metadata store.
func (ix *Index) Save(ctx context.Context, indexPath, metaPath string, labelWatermark uint64) error {
	if err := ctx.Err(); err != nil {
		return asterrors.Cancelled("vectorindex: save cancelled")
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return asterrors.New(asterrors.ErrCodeNotInitialized, "vectorindex: index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("create index directory: %w", err))
	}

	tmpIndex := indexPath + ".tmp"
	f, err := os.Create(tmpIndex)
	if err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("create index file: %w", err))
	}

	header := make([]byte, headerSize)
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(ix.config.Dimensions))
	header[12] = spaceCode(ix.config.Space)
	binary.LittleEndian.PutUint16(header[13:15], uint16(ix.config.M))
	binary.LittleEndian.PutUint16(header[15:17], uint16(ix.config.EfConstruction))
	binary.LittleEndian.PutUint64(header[17:25], uint64(ix.count))
	binary.LittleEndian.PutUint64(header[25:33], labelWatermark)
	binary.LittleEndian.PutUint64(header[33:41], uint64(len(ix.tombstones)))
	// header[41:64] stays zero — reserved.

	if _, err := f.Write(header); err != nil {
		f.Close()
		os.Remove(tmpIndex)
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("write index header: %w", err))
	}
	if err := ix.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpIndex)
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("export graph: %w", err))
	}
	// Export writes every graph node, tombstoned or not (lazy deletion
	// keeps them in the graph), so the tombstone set follows the payload
	// or deleted labels would resurface on the next Load.
	if err := writeTombstones(f, ix.tombstones); err != nil {
		f.Close()
		os.Remove(tmpIndex)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpIndex)
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("close index file: %w", err))
	}
	if err := os.Rename(tmpIndex, indexPath); err != nil {
		os.Remove(tmpIndex)
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("rename index file: %w", err))
	}

	meta := Meta{
		Version:    formatVersion,
		Dimensions: uint32(ix.config.Dimensions),
		Space:      string(ix.config.Space),
		Count:      uint64(ix.count),
		NextLabel:  labelWatermark,
		LastSaved:  time.Now(),
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return err
	}
	return nil
}

func writeTombstones(w io.Writer, tombstones map[uint64]bool) error {
	labels := make([]uint64, 0, len(tombstones))
	for label := range tombstones {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	buf := make([]byte, 8)
	for _, label := range labels {
		binary.LittleEndian.PutUint64(buf, label)
		if _, err := w.Write(buf); err != nil {
			return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("write tombstones: %w", err))
		}
	}
	return nil
}

func readTombstones(r io.Reader, count uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, count)
	buf := make([]byte, 8)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, asterrors.IndexFormatIncompatible("vectorindex: index.bin truncated inside the tombstone set")
		}
		out[binary.LittleEndian.Uint64(buf)] = true
	}
	return out, nil
}

func writeMeta(path string, meta Meta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("create meta directory: %w", err))
	}
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("marshal index meta: %w", err))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("write index meta: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return asterrors.Wrap(asterrors.ErrCodeFileSystem, fmt.Errorf("rename index meta: %w", err))
	}
	return nil
}

// ReadMeta loads index.meta.json without touching index.bin, letting a
// caller validate dimensions/space before committing to a full graph load.
func ReadMeta(path string) (Meta, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	var meta Meta
	if err := json.Unmarshal(buf, &meta); err != nil {
		return Meta{}, asterrors.New(asterrors.ErrCodeCorruptMetadata, "vectorindex: index.meta.json is not valid JSON", err)
	}
	return meta, nil
}

// Load reconstructs an Index from indexPath, validating the header against
// cfg and returning the label watermark recorded at save time. An
// incompatible version or dimension mismatch fails IndexFormatIncompatible
// rather than attempting a best-effort parse of an unknown layout.
func Load(ctx context.Context, indexPath string, cfg Config) (*Index, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, asterrors.Cancelled("vectorindex: load cancelled")
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, 0, asterrors.Wrap(asterrors.ErrCodeFileSystem, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, 0, asterrors.IndexFormatIncompatible("vectorindex: index.bin is shorter than the header")
	}
	if [4]byte(header[0:4]) != magic {
		return nil, 0, asterrors.IndexFormatIncompatible("vectorindex: index.bin missing ASTX magic")
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != formatVersion {
		return nil, 0, asterrors.IndexFormatIncompatible(fmt.Sprintf("vectorindex: index.bin version %d unsupported, want %d", version, formatVersion))
	}
	dims := int(binary.LittleEndian.Uint32(header[8:12]))
	space, err := spaceFromCode(header[12])
	if err != nil {
		return nil, 0, asterrors.IndexFormatIncompatible("vectorindex: index.bin has an unrecognized space code")
	}
	m := int(binary.LittleEndian.Uint16(header[13:15]))
	efConstruction := int(binary.LittleEndian.Uint16(header[15:17]))
	count := binary.LittleEndian.Uint64(header[17:25])
	labelWatermark := binary.LittleEndian.Uint64(header[25:33])
	tombstoneCount := binary.LittleEndian.Uint64(header[33:41])

	if cfg.Dimensions != 0 && cfg.Dimensions != dims {
		return nil, 0, ErrDimensionMismatch{Expected: cfg.Dimensions, Got: dims}
	}

	built := Config{
		Dimensions:     dims,
		Space:          space,
		M:              m,
		EfConstruction: efConstruction,
		Ef:             cfg.Ef,
		MaxElements:    cfg.MaxElements,
	}
	ix, err := New(built)
	if err != nil {
		return nil, 0, err
	}

	reader := bufio.NewReader(f)
	if err := ix.graph.Import(reader); err != nil {
		return nil, 0, asterrors.IndexFormatIncompatible(fmt.Sprintf("vectorindex: failed to import graph payload: %v", err))
	}
	tombstones, err := readTombstones(reader, tombstoneCount)
	if err != nil {
		return nil, 0, err
	}
	ix.count = int(count)
	ix.tombstones = tombstones

	return ix, labelWatermark, nil
}
