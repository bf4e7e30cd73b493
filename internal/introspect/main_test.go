package introspect

import (
	"os"
	"testing"

	"github.com/ancients-collective/cliprobe/internal/sandbox"
)

func TestMain(m *testing.M) {
	sandbox.MaybeTrampoline()
	os.Exit(m.Run())
}
