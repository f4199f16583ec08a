// Package autoload initialises the global logger from LOG_* variables.
package autoload

import (
	configx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/config"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		logx.Warn().Err(err).Msg("invalid LOG_* config, using defaults")
		return
	}
	logx.Init(*conf)
}
