package logging

import (
	"github.com/grovetools/bridge/config"
	"github.com/sirupsen/logrus"
)

// loadConfig reads the "logging" extension from bridge.yml. Missing or
// unparseable configuration falls back to zero-valued defaults.
func loadConfig() Config {
	var logCfg Config
	cfg, err := config.LoadDefault()
	if err != nil {
		return logCfg
	}
	if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
		logrus.Warnf("Failed to parse 'logging' config: %v", err)
	}
	return logCfg
}
