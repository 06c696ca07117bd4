package app

import (
	"os"
	"sync"
)

const testModeEnv = "STOREADMIN_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether STOREADMIN_TEST_MODE=1 was set at first use. Binaries
// exit early and the middleware stack drops the global rate limit and the TLS
// redirect in this mode.
func InTestMode() bool {
	return testMode()
}
