package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringWithoutBuildInfo(t *testing.T) {
	assert.Equal(t, Version, String())
}

func TestStringWithBuildInfo(t *testing.T) {
	v, c, b := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = v, c, b })

	Version, GitCommit, BuildTime = "v1.2.3", "abc1234", "2026-01-02"
	assert.Equal(t, "v1.2.3 (abc1234, built 2026-01-02)", String())
}
