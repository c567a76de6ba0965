package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/harvest-hub/harvesthub/internal/app"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("HARVESTHUB_TEST_MODE", "1")
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
