package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	v, bt, gc, gv := Version, BuildTime, GitCommit, GoVersion
	t.Cleanup(func() {
		Version, BuildTime, GitCommit, GoVersion = v, bt, gc, gv
	})
}

func TestSetInfo(t *testing.T) {
	restore(t)

	SetInfo("1.0.0", "2026-01-01T00:00:00Z", "abc123", "go1.26")
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "2026-01-01T00:00:00Z", BuildTime)
	assert.Equal(t, "abc123", GitCommit)
	assert.Equal(t, "go1.26", GoVersion)

	SetInfo("", "", "", "")
	assert.Equal(t, "1.0.0", Version, "empty values are ignored")
}

func TestInfo(t *testing.T) {
	restore(t)
	SetInfo("2.1.0", "", "", "")
	GoVersion = "unknown"

	info := Info()
	assert.True(t, strings.HasPrefix(info, "odoosweep 2.1.0\n"))
	assert.Contains(t, info, runtime.Version())
	assert.Equal(t, "odoosweep/2.1.0", UserAgent())
}
