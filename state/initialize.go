package state

import (
	"time"
)

// newLocalEnv creates a new LocalEnv instance with default values.
// Configuration, logger and report are set up by the command line layer.
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
	}
}
