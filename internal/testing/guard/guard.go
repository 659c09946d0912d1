// Package guard switches binaries into test mode when imported by a test, so
// calling main does not dial Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "REFEITORIO_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
