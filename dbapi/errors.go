package dbapi

import (
	"ohnitiel/upsql/dberr"
)

var (
	errConnectionClosed = dberr.New(dberr.Interface, "Connection is closed")
	errCursorClosed     = dberr.New(dberr.Interface, "Cursor is closed")
	errNoResult         = dberr.New(dberr.Interface, "Failed to fetch results")
)

func notSupported(op string) error {
	return dberr.New(dberr.NotSupported, op+" is not supported")
}

// translate maps a fault from the engine onto the kinds cursor callers
// match against. The original fault stays reachable through Unwrap.
func translate(err error) error {
	if err == nil {
		return nil
	}

	kind, ok := dberr.KindOf(err)
	if !ok {
		return dberr.Wrap(dberr.Database, "Failed to execute operation", err)
	}

	switch {
	case kind.In(dberr.Internal):
		return dberr.Wrap(dberr.Internal, "Failed to execute the operation because of internal service failure", err)
	case kind.In(dberr.Auth):
		return dberr.Wrap(dberr.Operational, "Failed to execute the operation because of authentication", err)
	case kind.In(dberr.API):
		return dberr.Wrap(dberr.Operational, "Failed to execute the operation because the service returned an error response", err)
	case kind.In(dberr.Request):
		return dberr.Wrap(dberr.Operational, "Failed to execute the operation because the service didn't answer", err)
	case kind.In(dberr.NotSupported), kind.In(dberr.Interface):
		return err
	default:
		return dberr.Wrap(dberr.Database, "Failed to execute operation", err)
	}
}
