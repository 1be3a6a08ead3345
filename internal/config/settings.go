package config

import (
	"github.com/spf13/viper"
)

// Settings are the launcher's own preferences, read from
// ~/.config/floki/settings.yaml and FLOKI_* environment variables. They are
// separate from the per-project floki.yaml.
type Settings struct {
	ConfigNames   []string       `mapstructure:"config_names"`
	StrictShell   bool           `mapstructure:"strict_shell"`
	StartupScript string         `mapstructure:"startup_script"`
	Docker        DockerSettings `mapstructure:"docker"`
	DinD          DinDSettings   `mapstructure:"dind"`
}

// DockerSettings configures how the container runtime is reached
type DockerSettings struct {
	Socket string `mapstructure:"socket"` // host socket path, "" to discover
}

// DinDSettings configures nested docker-in-docker defaults
type DinDSettings struct {
	Image string `mapstructure:"image"`
}

// LoadSettings loads settings from viper with defaults
func LoadSettings() *Settings {
	setDefaults()

	s := &Settings{}
	if err := viper.Unmarshal(s); err != nil {
		// Return defaults on error
		return defaultSettings()
	}
	if len(s.ConfigNames) == 0 {
		s.ConfigNames = defaultSettings().ConfigNames
	}
	return s
}

func setDefaults() {
	viper.SetDefault("config_names", []string{"floki.yaml", "floki.yml"})
	viper.SetDefault("strict_shell", true)
	viper.SetDefault("startup_script", "~/.floki/startup.sh")
	viper.SetDefault("docker.socket", "")
	viper.SetDefault("dind.image", DefaultDinDImage)
}

func defaultSettings() *Settings {
	return &Settings{
		ConfigNames:   []string{"floki.yaml", "floki.yml"},
		StrictShell:   true,
		StartupScript: "~/.floki/startup.sh",
		DinD: DinDSettings{
			Image: DefaultDinDImage,
		},
	}
}
