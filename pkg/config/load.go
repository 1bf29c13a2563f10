package config

import (
	"github.com/OpenPeeDeeP/xdg"
	"github.com/jesseduffield/yaml"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

// Load reads and unmarshals a YAML configuration file from path. The
// result is not otherwise validated; callers are expected to check the
// fields they depend on before handing the Config to the action engine
// (spec.md §1 leaves schema validation to the external collaborator).
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, cerrors.WrapIO(err, "error reading config file "+path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cerrors.WrapConfig(err, "error parsing config file "+path)
	}
	return &cfg, nil
}

// DefaultConfigDir resolves the platform XDG config directory for
// cedarbackup, matching the teacher's NewAppConfig config-dir
// resolution (pkg/config/app_config.go).
func DefaultConfigDir() string {
	return xdg.New("pronovic", "cedarbackup").ConfigHome()
}

// DefaultConfig returns a minimal, sensible-default Config suitable for
// `--print-config`, the way the teacher's config.GetDefaultConfig feeds
// main.go's -c flag.
func DefaultConfig() *Config {
	return &Config{
		BackupUser: "backup",
		BackupGroup: "backup",
		WorkingDir: "/var/lib/cedarbackup/working",
		Collect: &CollectConfig{
			TargetDir: "/var/lib/cedarbackup/collect",
		},
		Stage: &StageConfig{
			TargetDir: "/var/lib/cedarbackup/stage",
		},
		Store: &StoreConfig{
			SourceDir:   "/var/lib/cedarbackup/stage",
			MediaType:   MediaCDRW74,
			DevicePath:  "/dev/sr0",
			StartingDay: "monday",
		},
		Purge: &PurgeConfig{
			Dirs: []PurgeDir{
				{AbsolutePath: "/var/lib/cedarbackup/collect", DaysOld: 0},
				{AbsolutePath: "/var/lib/cedarbackup/stage", DaysOld: 7},
			},
		},
	}
}
