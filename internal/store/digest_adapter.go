package store

import (
	"context"

	"github.com/astdb-dev/astdb/internal/parse"
)

// DigestAdapter satisfies parse.DigestStore by translating between the
// parse package's FileDigest and the store's own FileDigestRecord. The
// two packages keep independent types (store has no dependency on parse)
// so this is the only place the translation lives.
type DigestAdapter struct {
	Store *SQLiteStore
}

var _ parse.DigestStore = (*DigestAdapter)(nil)

func (a *DigestAdapter) GetFileDigest(ctx context.Context, path string) (parse.FileDigest, bool, error) {
	rec, found, err := a.Store.GetFileDigest(ctx, path)
	if err != nil || !found {
		return parse.FileDigest{}, found, err
	}
	return parse.FileDigest{
		Path:         rec.Path,
		ContentHash:  rec.ContentHash,
		LastParsedAt: rec.LastParsedAt,
		NodeIDs:      rec.NodeIDs,
	}, true, nil
}

func (a *DigestAdapter) SaveFileDigest(ctx context.Context, digest parse.FileDigest) error {
	return a.Store.SaveFileDigest(ctx, FileDigestRecord{
		Path:         digest.Path,
		ContentHash:  digest.ContentHash,
		LastParsedAt: digest.LastParsedAt,
		NodeIDs:      digest.NodeIDs,
	})
}

func (a *DigestAdapter) DeleteFileDigest(ctx context.Context, path string) error {
	return a.Store.DeleteFileDigest(ctx, path)
}
