package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/uuid"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Hostname)

	_, err := uuid.Parse(info.InstanceID)
	assert.NoError(t, err, "instance id must be a valid UUID")
}

func TestGetInfo_Stable(t *testing.T) {
	first := GetInfo()
	second := GetInfo()
	assert.Equal(t, first, second, "info is computed once and cached")
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "v1.2.3", GitCommit: "abc123", BuildDate: "2026-01-01"}.String()
	assert.True(t, strings.HasPrefix(s, "adgate version v1.2.3"))
	assert.Contains(t, s, "abc123")
	assert.Contains(t, s, "2026-01-01")
}
