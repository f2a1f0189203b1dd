package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInfoString(t *testing.T) {
	assert.Equal(t, "v1.2.0", BuildInfo{Version: "v1.2.0", GitCommit: "unknown"}.String())
	assert.Equal(t, "v1.2.0", BuildInfo{Version: "v1.2.0"}.String())
	assert.Equal(t, "v1.2.0 (git: 0123abcd)", BuildInfo{Version: "v1.2.0", GitCommit: "0123abcdef456"}.String())
	assert.Equal(t, "dev (git: 0123abcd-dirty)", BuildInfo{Version: "dev", GitCommit: "0123abcdef456", Modified: true}.String())
}

func TestGetBuildInfo_Ldflags(t *testing.T) {
	prevVersion, prevCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = prevVersion, prevCommit })

	Version, GitCommit = "v9.9.9", "feedface"

	build := GetBuildInfo()
	assert.Equal(t, "v9.9.9", build.Version)
	assert.Equal(t, "feedface", build.GitCommit)
	assert.Equal(t, "v9.9.9 (git: feedface)", GetVersion())
}

func TestWithInterrupt(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, cleanup := WithInterrupt(parent)
	defer cleanup()

	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
