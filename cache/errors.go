package cache

import "github.com/cockroachdb/errors"

var (
	// ErrUnknownTier is returned by Set and Clear when a tier name does not
	// match any configured tier.
	ErrUnknownTier = errors.New("cache: unknown tier")

	// ErrInvalidTier is returned by NewRegistry and New for a bad tier list.
	ErrInvalidTier = errors.New("cache: invalid tier")

	// ErrBackingStoreUnavailable marks any failure of the persistent store,
	// including timeouts and an open circuit. It is logged, never returned
	// from Get, Set or Delete.
	ErrBackingStoreUnavailable = errors.New("cache: backing store unavailable")

	// ErrCodec marks a serialization failure of a value or persistent record.
	ErrCodec = errors.New("cache: codec error")

	// ErrClosed is returned by Set when the engine has been closed.
	ErrClosed = errors.New("cache: closed")
)

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "store %s", op), ErrBackingStoreUnavailable)
}

func codecErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCodec)
}
