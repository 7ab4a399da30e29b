package loghelper

import (
	log "github.com/sirupsen/logrus"
)

// Wrap messages about a single HTTP call, either made to HyperSync or answered by the query service.
func LogEndpoint(method string, endpoint string) *log.Entry {
	return log.WithFields(log.Fields{
		"method":   method,
		"endpoint": endpoint,
	})
}
