// Package apperr defines the sentinel errors shared across the sync core.
package apperr

import "errors"

var (
	// ErrPortUnavailable means the sharing session could not bind its port.
	ErrPortUnavailable = errors.New("port unavailable")

	// ErrCodeMismatch means a probed peer answered with 401 (wrong code).
	ErrCodeMismatch = errors.New("pairing code mismatch")

	// ErrUnreachable means a probed address did not answer in time.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrServerNotFound means every candidate address was probed without a match.
	ErrServerNotFound = errors.New("server not found")

	// ErrInvalidAddress means a literal IP failed validation before any network call.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrTransport means the fetch failed mid-flight or returned a non-200 status.
	ErrTransport = errors.New("transport error")

	// ErrDecode means the payload or file could not be decoded as an export bundle.
	ErrDecode = errors.New("decode error")

	// ErrStore means the record store rejected the import batch.
	ErrStore = errors.New("store error")

	// ErrSyncInProgress means another sync is already in flight.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Reason maps an error to the human-readable status string shown by the UI.
// Every terminal failure kind has a distinct string; unrecognized errors fall
// through to a generic message so nothing surfaces as an empty status.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPortUnavailable):
		return "Sharing port is unavailable"
	case errors.Is(err, ErrServerNotFound):
		return "No device with that code was found on this network"
	case errors.Is(err, ErrInvalidAddress):
		return "That is not a valid IPv4 address"
	case errors.Is(err, ErrTransport):
		return "Connection to the other device failed"
	case errors.Is(err, ErrDecode):
		return "The received data could not be read"
	case errors.Is(err, ErrStore):
		return "Saving the imported records failed"
	case errors.Is(err, ErrSyncInProgress):
		return "A sync is already running"
	default:
		return "Sync failed"
	}
}
