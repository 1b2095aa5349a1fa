// Package guard keeps test binaries from starting real runtimes. Blank
// import it from any test package that touches main-path wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CAMPUSWORKS_TEST_MODE") == "" {
			_ = os.Setenv("CAMPUSWORKS_TEST_MODE", "1")
		}
	})
}
