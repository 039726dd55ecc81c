package catalog

import "errors"

var (
	// ErrNilStore indicates a catalog without a point store.
	ErrNilStore = errors.New("catalog: store is nil")
	// ErrUnknownKind indicates an unsupported index kind.
	ErrUnknownKind = errors.New("catalog: unknown index kind")
)
