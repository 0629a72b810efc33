package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// DataFilepath is the filepath to the recorded market data.
	DataFilepath string
	// DBEndpoint is the series database endpoint.
	DBEndpoint string
	// DBUser is the series database user.
	DBUser string
	// DBPass is the series database user pass.
	DBPass string
	// ExportDir is the directory assembled series are exported to.
	ExportDir string
	// TickWindowDays is the number of days of tick data collected per run.
	TickWindowDays int
	// BarWindowDays is the number of days of bar data collected per run.
	BarWindowDays int
	// RunOnce is the single collection run flag.
	RunOnce bool

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.DataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("data filepath cannot be an empty string"))
	}
	if cfg.ExportDir == "" {
		errs = errors.Join(errs, fmt.Errorf("export directory cannot be an empty string"))
	}
	if cfg.TickWindowDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick window days must be positive"))
	}
	if cfg.BarWindowDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bar window days must be positive"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("datafilepath", &cfg.DataFilepath, "the recorded market data filepath")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbendpoint", &cfg.DBEndpoint, "the series database endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbuser", &cfg.DBUser, "the series database user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbpass", &cfg.DBPass, "the series database user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("exportdir", &cfg.ExportDir, "the series export directory")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("tickwindowdays", &cfg.TickWindowDays, "the tick collection window in days")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("barwindowdays", &cfg.BarWindowDays, "the bar collection window in days")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("runonce", &cfg.RunOnce, "the single collection run flag")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
