// A simple function to help with logging errors.
package loghelper

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// Wrap the error message. Wrapped errors also carry their innermost cause,
// which is the sentinel the caller usually classifies on.
func LogError(err error) *log.Entry {
	fields := log.Fields{
		"err": err,
	}
	if cause := rootCause(err); cause != err {
		fields["cause"] = cause
	}
	return log.WithFields(fields)
}

func rootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}
