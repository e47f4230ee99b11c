package internal

import (
	"encoding/json"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment variables overriding StaticConfig fields,
// for example HIKEVENTS_LOGLEVEL=debug.
const EnvPrefix = "hikevents"

type StaticConfig struct {
	ExtractorID string

	EnabledIntegrations []string
	LogLevel            string
	LogDir              string
	MetricsAddress      string // host:port of the prometheus endpoint, empty disables it

	Secrets map[string]string `ignored:"true"` // encrypted secrets, referenced by key from integration configs

	LocalIntegrationConfig map[string]interface{} `ignored:"true"`
}

// LoadStaticConfig reads the JSON config file and applies environment overrides.
func LoadStaticConfig(path string) (*StaticConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return ParseStaticConfig(body)
}

func ParseStaticConfig(body []byte) (*StaticConfig, error) {
	var config StaticConfig
	if err := json.Unmarshal(body, &config); err != nil {
		return nil, errors.Wrap(err, "incorrect config file format")
	}
	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, errors.Wrap(err, "environment overrides")
	}
	return &config, nil
}

// DecodeIntegrationConfig decodes the local config section of an integration into out.
// It returns false if the section is missing.
func (c *StaticConfig) DecodeIntegrationConfig(name string, out interface{}) (bool, error) {
	section, ok := c.LocalIntegrationConfig[name]
	if !ok || section == nil {
		return false, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return false, err
	}
	if err := decoder.Decode(section); err != nil {
		return false, errors.Wrapf(err, "decode %s config", name)
	}
	return true, nil
}
