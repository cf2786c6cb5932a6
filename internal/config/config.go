// Package config provides configuration management for tdi using Viper
// for flexible configuration loading from files, environment variables and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the TDI_ prefix, and validation. It manages parser and
// render settings, the template loader, the preview server and logging.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/pkg/codec"
	"github.com/conneroisu/tdi/pkg/directive"
	"github.com/conneroisu/tdi/pkg/markup"
	"github.com/conneroisu/tdi/pkg/tdi"
)

type Config struct {
	Parser ParserConfig `mapstructure:"parser" yaml:"parser" json:"parser"`
	Render RenderConfig `mapstructure:"render" yaml:"render" json:"render"`
	Loader LoaderConfig `mapstructure:"loader" yaml:"loader" json:"loader"`
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

type ParserConfig struct {
	Dialect             string `mapstructure:"dialect" yaml:"dialect" json:"dialect"`
	Prefix              string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	ConditionalComments bool   `mapstructure:"conditional_comments" yaml:"conditional_comments" json:"conditional_comments"`
}

type RenderConfig struct {
	StrictScopes bool   `mapstructure:"strict_scopes" yaml:"strict_scopes" json:"strict_scopes"`
	DecodePolicy string `mapstructure:"decode_policy" yaml:"decode_policy" json:"decode_policy"`
	Encoding     string `mapstructure:"encoding" yaml:"encoding" json:"encoding"`
}

type LoaderConfig struct {
	Root       string        `mapstructure:"root" yaml:"root" json:"root"`
	Extensions []string      `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	AutoReload bool          `mapstructure:"auto_reload" yaml:"auto_reload" json:"auto_reload"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("parser.dialect", "html")
	v.SetDefault("parser.prefix", directive.DefaultPrefix)
	v.SetDefault("parser.conditional_comments", true)

	v.SetDefault("render.strict_scopes", false)
	v.SetDefault("render.decode_policy", "replace")
	v.SetDefault("render.encoding", "utf-8")

	v.SetDefault("loader.root", ".")
	v.SetDefault("loader.extensions", []string{".html", ".htm", ".xhtml", ".tdi"})
	v.SetDefault("loader.auto_reload", true)
	v.SetDefault("loader.debounce", 100*time.Millisecond)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// EnvPrefix is the prefix of configuration environment variables, as in
// TDI_SERVER_PORT.
const EnvPrefix = "TDI"

// BindEnv makes v read TDI_<SECTION>_<KEY> environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, "decoding configuration")
	}

	// Handle slices set as comma separated env values (workaround for viper slice handling)
	if v.IsSet("loader.extensions") && len(config.Loader.Extensions) == 0 {
		config.Loader.Extensions = v.GetStringSlice("loader.extensions")
	}
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	config, err := LoadFrom(viper.New())
	if err != nil {
		panic(err)
	}
	return config
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+first.Error()).
		WithContext("field", first.Field).
		WithContext("value", first.Value)
}

// DialectValue returns the parsed dialect. The config is validated, so the
// name is known.
func (p ParserConfig) DialectValue() markup.Dialect {
	d, _ := markup.ParseDialect(p.Dialect)
	return d
}

// PolicyValue returns the parsed decode policy.
func (r RenderConfig) PolicyValue() codec.Policy {
	p, _ := codec.ParsePolicy(r.DecodePolicy)
	return p
}

// ParseOptions translates the parser and render sections into parse
// options.
func (c *Config) ParseOptions() []tdi.ParseOption {
	return []tdi.ParseOption{
		tdi.WithPrefix(c.Parser.Prefix),
		tdi.WithDialect(c.Parser.DialectValue()),
		tdi.WithConditionalComments(c.Parser.ConditionalComments),
		tdi.WithEncoding(c.Render.Encoding),
		tdi.WithDecodePolicy(c.Render.PolicyValue()),
	}
}

// RenderOptions translates the render section into render options.
func (c *Config) RenderOptions() []tdi.RenderOption {
	opts := []tdi.RenderOption{tdi.WithCodecPolicy(c.Render.PolicyValue())}
	if c.Render.StrictScopes {
		opts = append(opts, tdi.WithStrictScopes())
	}
	return opts
}

// LoggerConfig translates the log section.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	lc.Format = c.Log.Format
	return lc
}
