//go:build !cgo

package store

import (
	"database/sql"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

const nativeAvailable = false

func openNative(path string) (*sql.DB, error) {
	return nil, asterrors.New(asterrors.ErrCodeInvalidConfig, "native sqlite backend requires cgo, binary was built without it", nil)
}
