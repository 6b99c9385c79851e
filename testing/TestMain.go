// Package testing is blank-imported by binary tests so that calling main
// exercises wiring without touching live infrastructure.
package testing

import (
	"os"
	stdtesting "testing"

	"github.com/odyssey-erp/partsledger/internal/app"
)

// unreachableDSN points at port 0 so an accidental dial fails fast.
const unreachableDSN = "postgres://partsledger@127.0.0.1:0/partsledger_test?sslmode=disable"

func init() {
	_ = os.Setenv(app.TestModeEnv, "1")
	if os.Getenv("PG_DSN") == "" {
		_ = os.Setenv("PG_DSN", unreachableDSN)
	}
	app.RefreshTestMode()
}

func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
