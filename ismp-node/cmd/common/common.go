// Package common contains common command helpers.
package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/config"
)

const (
	// CfgConfigFile is the flag used to specify a config file.
	CfgConfigFile = "config"

	cfgLogFile  = "log.file"
	cfgLogFmt   = "log.format"
	cfgLogLevel = "log.level"
	// Custom log levels for modules are not supported by cobra.
	// Use the config file instead.
)

var (
	// RootFlags has the flags that are common across all commands.
	RootFlags = flag.NewFlagSet("", flag.ContinueOnError)

	rootLog = logging.GetLogger("ismp-node")
)

// Logger returns the command logger.
func Logger() *logging.Logger {
	return rootLog
}

// InitConfig initializes the command configuration.
//
// WARNING: This is exposed for the benefit of tests and the interface
// is not guaranteed to be stable.
func InitConfig() {
	if err := initConfig(); err != nil {
		EarlyLogAndExit(err)
	}
}

func initConfig() error {
	if cfgFile := viper.GetString(CfgConfigFile); cfgFile != "" {
		if err := config.InitConfig(normalizePath(cfgFile)); err != nil {
			return err
		}
	}

	// Command line flags override the config file.
	cfg := &config.GlobalConfig.Log
	if viper.IsSet(cfgLogFile) {
		cfg.File = viper.GetString(cfgLogFile)
	}
	if viper.IsSet(cfgLogFmt) {
		cfg.Format = viper.GetString(cfgLogFmt)
	}
	if viper.IsSet(cfgLogLevel) {
		cfg.Level = viper.GetString(cfgLogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return initLogging(cfg)
}

func initLogging(cfg *config.LogConfig) error {
	var logFmt logging.Format
	if err := logFmt.Set(cfg.Format); err != nil {
		return err
	}

	var logLevel logging.Level
	if err := logLevel.Set(cfg.Level); err != nil {
		return err
	}

	moduleLevels, err := logging.ParseModuleLevels(cfg.Modules)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		if w, err = os.OpenFile(normalizePath(cfg.File), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
			return err
		}
	}

	return logging.Initialize(w, logFmt, logLevel, moduleLevels)
}

// EarlyLogAndExit logs the error and exits.
//
// Note: This routine should only be used prior to the logging system
// being initialized.
func EarlyLogAndExit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func normalizePath(f string) string {
	if !filepath.IsAbs(f) {
		if abs, err := filepath.Abs(f); err == nil {
			return abs
		}
	}
	return f
}

func init() {
	logFmt := logging.FmtLogfmt
	logLevel := logging.LevelWarn

	RootFlags.String(CfgConfigFile, "", "config file")
	RootFlags.String(cfgLogFile, "", "log file")
	RootFlags.Var(&logFmt, cfgLogFmt, "log format")
	RootFlags.Var(&logLevel, cfgLogLevel, "log level")

	_ = viper.BindPFlags(RootFlags)
}
