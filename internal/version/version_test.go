package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)
	assert.Equal(t, "SyftVault", AppName)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.True(t, strings.HasPrefix(ShortWithApp(), AppName+" "))

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))

	assert.True(t, strings.HasPrefix(UserAgent(), "SyftVault/"))
}

func restoreVersion(t *testing.T) {
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = v, r, d
	})
}

func TestApplyBuildInfo_FillsDefaults(t *testing.T) {
	restoreVersion(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	applyBuildInfo("v1.4.2", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "1.4.2", Version)
	assert.Equal(t, "abcdef123456-dirty", Revision)
	assert.Equal(t, "2025-12-12T01:00:00Z", BuildDate)
}

func TestApplyBuildInfo_LdflagsWin(t *testing.T) {
	restoreVersion(t)
	Version, Revision, BuildDate = "1.2.3", "deadbeef", "from-ldflags"

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}

func TestApplyBuildInfo_DevelBuild(t *testing.T) {
	restoreVersion(t)
	Version = devVersion

	applyBuildInfo("(devel)", nil)
	assert.Equal(t, devVersion, Version)
}
