package datastore

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports that a requested dataset does not exist. The
// absence of a dataset is an expected condition for many arm/visit
// combinations and callers are expected to classify it separately from
// real faults.
//
// The message deliberately contains "could not be found" so callers
// that only see flattened error text can still classify it.
type NotFoundError struct {
	Key Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %s could not be found", e.Key)
}

// IsNotFound reports whether err represents an absent dataset. The
// typed check is authoritative; the substring match is a compatibility
// fallback for stores that surface plain text errors.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "could not be found")
}
