// Package config loads the description of a test environment: the test
// servers to drive and how to reach them, plus the backend services tests
// may talk to directly.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/syncbench/tdk/pkg/client"
	"github.com/syncbench/tdk/pkg/system"
	"github.com/syncbench/tdk/pkg/transport"
	"github.com/syncbench/tdk/pkg/transport/httptransport"
	"github.com/syncbench/tdk/pkg/transport/wstransport"
)

const (
	environmentVariablePrefix = "TDK"
	automaticEnvVar           = true
)

var (
	environmentVariableReplace = strings.NewReplacer(".", "_")
	configDecoderHook          = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
)

// Default returns the configuration used for every key the file and the
// environment leave unset.
func Default() Config {
	return Config{
		TestServerDefaults: TestServer{Transport: string(transport.TypeHTTP)},
		HTTPTimeout:        httptransport.DefaultTimeout,
		WSListenAddress:    client.DefaultWSListenAddress,
		WSMaxMessageSize:   wstransport.DefaultMaxMessageSize,
		ConnectTimeout:     client.DefaultConnectTimeout,
		Poll: Poll{
			Interval: system.DefaultPollInterval,
			Timeout:  system.DefaultPollTimeout,
		},
	}
}

// Load reads the configuration file at path from the OS filesystem. The
// format follows the file extension (yaml, json or toml). An empty path
// loads defaults and environment variables only.
func Load(path string) (Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is Load on an arbitrary filesystem.
func LoadFs(fs afero.Fs, path string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(environmentVariablePrefix)
	v.SetEnvKeyReplacer(environmentVariableReplace)
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}
	if automaticEnvVar {
		v.AutomaticEnv()
	}

	var out Config
	if err := v.Unmarshal(&out, configDecoderHook); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := out.applyServerDefaults(); err != nil {
		return Config{}, err
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// setDefaults registers every scalar key so environment variables can
// override keys absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("test_server_defaults.url", cfg.TestServerDefaults.URL)
	v.SetDefault("test_server_defaults.transport", cfg.TestServerDefaults.Transport)
	v.SetDefault("test_server_defaults.dataset_version", cfg.TestServerDefaults.DatasetVersion)
	v.SetDefault("logslurp", cfg.LogSlurp)
	v.SetDefault("api_version", cfg.APIVersion)
	v.SetDefault("http_timeout", cfg.HTTPTimeout)
	v.SetDefault("ws_listen_address", cfg.WSListenAddress)
	v.SetDefault("ws_max_message_size", cfg.WSMaxMessageSize)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("record_path", cfg.RecordPath)
	v.SetDefault("poll.interval", cfg.Poll.Interval)
	v.SetDefault("poll.timeout", cfg.Poll.Timeout)
}

func (c *Config) applyServerDefaults() error {
	for i := range c.TestServers {
		if err := mergo.Merge(&c.TestServers[i], c.TestServerDefaults); err != nil {
			return errors.Wrapf(err, "applying defaults to test server %d", i)
		}
	}
	return nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if len(c.TestServers) == 0 {
		result = multierror.Append(result, fmt.Errorf("no test servers configured"))
	}
	for i, server := range c.TestServers {
		if err := validateServer(server); err != nil {
			result = multierror.Append(result, fmt.Errorf("test server %d: %w", i, err))
		}
	}
	if c.APIVersion < 0 {
		result = multierror.Append(result, fmt.Errorf("api_version must not be negative, got %d", c.APIVersion))
	}
	if c.HTTPTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout))
	}
	if c.ConnectTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if err := c.PollSpec().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func validateServer(server TestServer) error {
	if server.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(server.URL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q needs a scheme and a host", server.URL)
	}
	_, err = transport.ParseType(server.Transport)
	return err
}

// PollSpec is the configured default poll specification.
func (c Config) PollSpec() system.PollSpec {
	return system.PollSpec{Interval: c.Poll.Interval, Timeout: c.Poll.Timeout}
}
