package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFullCarriesBuildProvenance ensures the rendered version names the
// release, the commit and the build time.
func TestFullCarriesBuildProvenance(t *testing.T) {
	t.Parallel()

	full := Full()
	require.Contains(t, full, Short())
	require.Contains(t, full, Commit)
	require.Contains(t, full, BuildTime)
}
