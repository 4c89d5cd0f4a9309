package workspace

import (
	"os"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// EnsureDirs creates every directory the workspace layout names, if
// missing. Safe to call repeatedly.
func (w *Workspace) EnsureDirs() error {
	for _, dir := range w.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return asterrors.FileSystem(err)
		}
	}
	return nil
}
