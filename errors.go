package distcache

import (
	"fmt"
)

// OpError is returned when a store call made on behalf of a cache or
// rate-limit operation fails. Key is the storage key involved.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("distcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}

// WrapOpError wraps err with the operation and key. Returns nil for nil err.
// Exposed for sibling packages (ratelimit) sharing the same error shape.
func WrapOpError(op, key string, err error) error {
	return opErr(op, key, err)
}
