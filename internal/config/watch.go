package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WatchLogLevel re-reads logging.level whenever the config file changes and
// applies it to level. Other settings need a restart. It is a no-op when no
// config file was loaded.
func WatchLogLevel(v *viper.Viper, level zap.AtomicLevel, logger *zap.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		applyLogLevel(v, level, logger, e)
	})
	v.WatchConfig()
	logger.Debug("watching config file", zap.String("path", v.ConfigFileUsed()))
}

func applyLogLevel(v *viper.Viper, level zap.AtomicLevel, logger *zap.Logger, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	next, err := parseLevel(v.GetString("logging.level"))
	if err != nil {
		logger.Warn("ignoring config change", zap.String("path", e.Name), zap.Error(err))
		return
	}
	if next == level.Level() {
		return
	}
	level.SetLevel(next)
	logger.Info("log level changed", zap.Stringer("level", next))
}
