package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. MUSICMANAGER_DATA_DIR.
const EnvPrefix = "MUSICMANAGER"

// NewViper returns a viper instance reading MUSICMANAGER_* variables, with
// dashed flag names mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key that was set by a changed flag or an
// environment variable on top of the file configuration.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet("music-library") {
		c.MusicLibrary = v.GetString("music-library")
	}
	if v.IsSet("data-dir") {
		c.DataDir = v.GetString("data-dir")
	}
	if v.IsSet("static-dir") {
		c.StaticDir = v.GetString("static-dir")
	}
	if v.IsSet("verbose") {
		c.Verbose = v.GetBool("verbose")
	}
	if v.IsSet("log-file") {
		c.LogFile = v.GetString("log-file")
	}
	if v.IsSet("server-host") {
		c.Server.Host = v.GetString("server-host")
	}
	if v.IsSet("server-port") {
		c.Server.Port = v.GetInt("server-port")
	}
	if v.IsSet("job-retention") {
		c.JobRetention = v.GetDuration("job-retention")
	}
	c.expandPaths()
}
