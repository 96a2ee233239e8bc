package configuration

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AuthModeBasic             = "basic"
	AuthModeClientCredentials = "client_credentials"

	redacted = "[redacted]"
)

var (
	// Jamf tokens are valid for 30 minutes, renew 5 minutes early.
	defaultRenewalThreshold = 1500 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultRetryMax         = 2
	defaultLogRetentionDays = 14

	// legacyEnv maps the unprefixed environment variables older deployments set
	// to configuration keys.
	legacyEnv = map[string]string{
		"jamf.url":      "JSS",
		"jamf.username": "JSSUSER",
		"jamf.password": "JSSPASS",
		"jamf.ea_name":  "EANAME",
	}
)

// Configuration holds application configuration read from a YAML or set by env variables.
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// DryRun resolves every record without patching.
	DryRun bool `mapstructure:"dry_run"`

	// JamfOptions defines the Jamf Pro client configuration parameters
	JamfOptions *JamfOptions `mapstructure:"jamf"`

	// RecordsOptions defines where device records are read from.
	RecordsOptions *RecordsOptions `mapstructure:"records"`

	// LogsOptions defines the optional log file directory.
	LogsOptions *LogsOptions `mapstructure:"logs"`

	// MetricsOptions defines the prometheus endpoints.
	MetricsOptions *MetricsOptions `mapstructure:"metrics"`

	EnableProfiling bool `mapstructure:"enable_profiling"`
}

// JamfOptions defines configuration for the Jamf Pro API client.
type JamfOptions struct {
	URL          string `mapstructure:"url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	AuthMode     string `mapstructure:"auth_mode"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// EAName is the extension attribute updated on each device.
	EAName           string        `mapstructure:"ea_name"`
	RenewalThreshold time.Duration `mapstructure:"renewal_threshold"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RetryMax         int           `mapstructure:"retry_max"`
	ConfirmUpdates   bool          `mapstructure:"confirm_updates"`
}

type RecordsOptions struct {
	File string `mapstructure:"file"`
}

type LogsOptions struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type MetricsOptions struct {
	ListenAddress  string `mapstructure:"listen_address"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// New creates an empty configuration struct.
func New() *Configuration {
	config := &Configuration{}

	// these are initialized here so viper can read in configuration from env vars
	// once https://github.com/spf13/viper/pull/1429 is merged, this can go.
	config.JamfOptions = &JamfOptions{
		AuthMode:         AuthModeBasic,
		RenewalThreshold: defaultRenewalThreshold,
		RequestTimeout:   defaultRequestTimeout,
		RetryMax:         defaultRetryMax,
	}
	config.RecordsOptions = &RecordsOptions{}
	config.LogsOptions = &LogsOptions{RetentionDays: defaultLogRetentionDays}
	config.MetricsOptions = &MetricsOptions{}

	return config
}

// AsLogFields returns the configuration as slog fields with secrets redacted.
func (c *Configuration) AsLogFields() []any {
	jamf := c.redactedJamfOptions()

	return []any{
		"logLevel", c.LogLevel,
		"dryRun", c.DryRun,
		"jamfURL", jamf.URL,
		"jamfUsername", jamf.Username,
		"jamfPassword", jamf.Password,
		"jamfClientSecret", jamf.ClientSecret,
		"authMode", jamf.AuthMode,
		"eaName", jamf.EAName,
		"renewalThreshold", jamf.RenewalThreshold.String(),
		"requestTimeout", jamf.RequestTimeout.String(),
		"retryMax", jamf.RetryMax,
		"confirmUpdates", jamf.ConfirmUpdates,
		"recordsFile", c.RecordsOptions.File,
		"logsDir", c.LogsOptions.Dir,
		"metricsListenAddress", c.MetricsOptions.ListenAddress,
		"pushgatewayURL", c.MetricsOptions.PushgatewayURL,
		"enableProfiling", c.EnableProfiling,
	}
}

func (c *Configuration) redactedJamfOptions() *JamfOptions {
	dup, err := copystructure.Copy(c.JamfOptions)
	if err != nil {
		return &JamfOptions{}
	}

	jamf, ok := dup.(*JamfOptions)
	if !ok || jamf == nil {
		return &JamfOptions{}
	}

	if jamf.Password != "" {
		jamf.Password = redacted
	}

	if jamf.ClientSecret != "" {
		jamf.ClientSecret = redacted
	}

	return jamf
}

func (c *Configuration) LoadArgs(args *model.Args) {
	if args.LogLevel != "" {
		c.LogLevel = args.LogLevel
	}

	if args.EnableProfiling {
		c.EnableProfiling = true
	}

	if args.DryRun {
		c.DryRun = true
	}

	if args.RecordsFile != "" {
		c.RecordsOptions.File = args.RecordsFile
	}
}

// Load the application configuration
// Reads in the configFile when available and overrides from environment variables.
func Load(args *model.Args) (*Configuration, error) {
	viperConfig := viper.New()
	viperConfig.SetConfigType("yaml")
	viperConfig.SetEnvPrefix(model.AppName)
	viperConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConfig.AutomaticEnv()

	if args.ConfigFile != "" {
		fh, err := os.Open(args.ConfigFile)
		if err != nil {
			return nil, errors.Wrap(model.ErrConfig, err.Error())
		}
		defer fh.Close()

		if err = viperConfig.ReadConfig(fh); err != nil {
			return nil, errors.Wrap(model.ErrConfig, "ReadConfig error: "+err.Error())
		}
	}

	config := New()

	if err := config.envBindVars(viperConfig); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
	}

	if err := viperConfig.Unmarshal(config); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "Unmarshal error: "+err.Error())
	}

	// flags take precedence over file and env
	config.LoadArgs(args)

	if err := config.envVarJamfOverrides(viperConfig); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "jamf env overrides error: "+err.Error())
	}

	if err := config.validate(); err != nil {
		return nil, errors.Wrap(model.ErrConfig, err.Error())
	}

	return config, nil
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (c *Configuration) envBindVars(viperConfig *viper.Viper) error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(c, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten configuration")
	}

	for k := range flat {
		if err := viperConfig.BindEnv(k); err != nil {
			return errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// envVarJamfOverrides applies the legacy environment variable names when
// the prefixed variables and config file left a key empty.
func (c *Configuration) envVarJamfOverrides(viperConfig *viper.Viper) error {
	if c.JamfOptions == nil {
		c.JamfOptions = New().JamfOptions
	}

	legacy := func(key string) string {
		if v := viperConfig.GetString(key); v != "" {
			return v
		}

		return os.Getenv(legacyEnv[key])
	}

	if c.JamfOptions.URL == "" {
		c.JamfOptions.URL = legacy("jamf.url")
	}

	if c.JamfOptions.Username == "" {
		c.JamfOptions.Username = legacy("jamf.username")
	}

	if c.JamfOptions.Password == "" {
		c.JamfOptions.Password = legacy("jamf.password")
	}

	if c.JamfOptions.EAName == "" {
		c.JamfOptions.EAName = legacy("jamf.ea_name")
	}

	c.JamfOptions.URL = strings.TrimRight(c.JamfOptions.URL, "/")

	if c.JamfOptions.URL == "" {
		return errors.New("missing parameter: jamf.url")
	}

	u, err := url.Parse(c.JamfOptions.URL)
	if err != nil {
		return errors.New("jamf URL error: " + err.Error())
	}

	if u.Scheme == "" || u.Host == "" {
		return errors.New("jamf URL must be absolute: " + c.JamfOptions.URL)
	}

	return nil
}

// nolint:gocyclo // parameter validation is cyclomatic
func (c *Configuration) validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	jamf := c.JamfOptions

	switch jamf.AuthMode {
	case "", AuthModeBasic:
		jamf.AuthMode = AuthModeBasic

		if jamf.Username == "" || jamf.Password == "" {
			return errors.New("jamf.username and jamf.password are required for basic auth")
		}
	case AuthModeClientCredentials:
		if jamf.ClientID == "" || jamf.ClientSecret == "" {
			return errors.New("jamf.client_id and jamf.client_secret are required for client_credentials auth")
		}
	default:
		return errors.New("unknown jamf.auth_mode: " + jamf.AuthMode)
	}

	if jamf.EAName == "" {
		return errors.New("missing parameter: jamf.ea_name")
	}

	if jamf.RenewalThreshold <= 0 {
		jamf.RenewalThreshold = defaultRenewalThreshold
	}

	if jamf.RequestTimeout <= 0 {
		jamf.RequestTimeout = defaultRequestTimeout
	}

	// a bare YAML integer decodes as nanoseconds
	if jamf.RenewalThreshold < time.Second {
		return errors.New("jamf.renewal_threshold must be at least 1s, give a unit as in 1500s: " +
			jamf.RenewalThreshold.String())
	}

	if jamf.RequestTimeout < time.Second {
		return errors.New("jamf.request_timeout must be at least 1s, give a unit as in 30s: " +
			jamf.RequestTimeout.String())
	}

	if jamf.RetryMax < 0 {
		return errors.New("jamf.retry_max must not be negative")
	}

	if c.RecordsOptions.File == "" {
		return errors.New("missing parameter: records.file")
	}

	if c.LogsOptions.RetentionDays <= 0 {
		c.LogsOptions.RetentionDays = defaultLogRetentionDays
	}

	if c.MetricsOptions.PushgatewayURL != "" {
		if _, err := url.Parse(c.MetricsOptions.PushgatewayURL); err != nil {
			return errors.New("metrics pushgateway URL error: " + err.Error())
		}
	}

	return nil
}
