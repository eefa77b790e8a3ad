package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVolumeConfigValidate(t *testing.T) {
	base := VolumeConfig{
		Device:   "/dev/sdb",
		BaseName: "media_01",
		FsType:   "ext4",
	}

	t.Run("minimal valid", func(t *testing.T) {
		cfg := base
		assert.NoError(t, cfg.Validate())
	})

	t.Run("device must be a dev path", func(t *testing.T) {
		cfg := base
		cfg.Device = "sdb"
		assert.Error(t, cfg.Validate())
	})

	t.Run("base name charset", func(t *testing.T) {
		cfg := base
		cfg.BaseName = "bad name!"
		assert.Error(t, cfg.Validate())
	})

	t.Run("fs type whitelist", func(t *testing.T) {
		cfg := base
		cfg.FsType = "btrfs"
		assert.Error(t, cfg.Validate())
	})

	t.Run("reserved percent bounds", func(t *testing.T) {
		cfg := base
		cfg.ReservedPercent = 51
		assert.Error(t, cfg.Validate())
		cfg.ReservedPercent = 50
		assert.NoError(t, cfg.Validate())
	})

	t.Run("samba name too long is flagged not truncated", func(t *testing.T) {
		cfg := base
		cfg.Samba = true
		cfg.GuestAccess = true
		cfg.BaseName = strings.Repeat("a", 81)
		assert.Error(t, cfg.Validate())
	})

	t.Run("authenticated samba needs principals", func(t *testing.T) {
		cfg := base
		cfg.Samba = true
		assert.Error(t, cfg.Validate())
		cfg.Principals = []string{"alice"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeDone.OK())
	assert.True(t, OutcomeAlreadySatisfied.OK())
	assert.False(t, OutcomeFailed.OK())
	assert.Equal(t, "done", OutcomeDone.String())
	assert.Equal(t, "already-satisfied", OutcomeAlreadySatisfied.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}
