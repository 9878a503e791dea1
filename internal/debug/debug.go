// Package debug provides env-gated diagnostic logging.
package debug

import (
	"fmt"
	"os"
)

var enabled = os.Getenv("TRACKLET_DEBUG") != ""

func Enabled() bool {
	return enabled
}

func Logf(format string, args ...interface{}) {
	if enabled {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
