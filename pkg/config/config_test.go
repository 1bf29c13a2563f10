package config

import (
	"testing"

	yaml "github.com/jesseduffield/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTripsThroughYAML(t *testing.T) {
	cfg := Config{
		WorkingDir: "/var/cedar",
		Peers: []PeerConfig{
			{Name: "host1", CollectDir: "/var/backup/collect"},
			{Name: "host2", CollectDir: "/home/host2/collect", RemoteUser: "backup", RshCommand: "ssh"},
		},
		Stage: &StageConfig{TargetDir: "/var/backup/staging", WarnMidnite: true},
		Store: &StoreConfig{
			MediaType:     MediaDVDPlusRW,
			DevicePath:    "/dev/dvd",
			BlankBehavior: &BlankBehavior{Mode: "weekly", Factor: 1.5},
		},
	}

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var parsed Config
	require.NoError(t, yaml.Unmarshal(out, &parsed))

	assert.Equal(t, cfg.WorkingDir, parsed.WorkingDir)
	assert.Len(t, parsed.Peers, 2)
	assert.True(t, parsed.Peers[1].IsRemote())
	assert.False(t, parsed.Peers[0].IsRemote())
	assert.Equal(t, "weekly", parsed.Store.BlankBehavior.Mode)
}
