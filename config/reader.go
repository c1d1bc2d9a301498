package config

import (
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/topogo/logging"
)

// Read reads a config from the given file. ${VAR} and ${VAR:-default} placeholders are
// replaced from the environment before parsing.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", filePath)
	}
	return fromBytes(filePath, buf, logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	buf, err := envsubst.Bytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to substitute environment in config")
	}
	return fromBytes(originalPath, buf, logger)
}

func fromBytes(originalPath string, buf []byte, logger logging.Logger) (*Config, error) {
	var attrs map[string]interface{}
	if err := json.Unmarshal(buf, &attrs); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}

	cfg := Default()
	if err := decode(attrs, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	cfg.ConfigFilePath = originalPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded", "path", originalPath)
	return cfg, nil
}

// decode overlays attrs onto cfg, so fields absent from attrs keep their defaults.
func decode(attrs map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      cfg,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(attrs)
}
