package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSchemas is the schema-name mapping used when the config file does
// not declare one. Queries reference source schemas through these names so a
// deployment with non-standard database names only has to remap them here.
var DefaultSchemas = map[string]string{
	"keystone":     "keystone",
	"nova":         "nova",
	"cinder":       "cinder",
	"glance":       "glance",
	"rcshibboleth": "rcshibboleth",
	"dashboard":    "dashboard",
}

// DBConfig holds the connection settings for one MySQL endpoint.
type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// ComputeConfig holds the compute API endpoint and credentials.
type ComputeConfig struct {
	AuthURL    string
	Username   string
	Password   string
	ProjectID  string
	APIVersion string
}

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string

	Remote  DBConfig
	Local   DBConfig
	Compute ComputeConfig

	// Schemas maps logical schema names to the actual database names on the
	// remote server.
	Schemas map[string]string

	// WatermarkMargin is subtracted from a stored watermark before it is
	// used as an incremental window bound, to tolerate clock skew and
	// late-committing transactions on the source.
	WatermarkMargin time.Duration

	LogLevel string
}

// Load reads configuration from the given file (optional), the environment
// and a .env file, in that order of precedence.
func Load(configFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("POLLSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "reporting-pollster")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("watermark.margin", "10m")
	v.SetDefault("remote.host", "localhost")
	v.SetDefault("remote.port", "3306")
	v.SetDefault("local.host", "localhost")
	v.SetDefault("local.port", "3306")
	v.SetDefault("compute.api_version", "2")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("pollster")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/reporting-pollster")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	margin, err := time.ParseDuration(v.GetString("watermark.margin"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid watermark.margin: %w", err)
	}

	cfg := Config{
		AppName:    v.GetString("app.name"),
		AppVersion: v.GetString("app.version"),
		Remote: DBConfig{
			Host:     v.GetString("remote.host"),
			Port:     v.GetString("remote.port"),
			Name:     v.GetString("remote.name"),
			User:     v.GetString("remote.user"),
			Password: v.GetString("remote.password"),
		},
		Local: DBConfig{
			Host:     v.GetString("local.host"),
			Port:     v.GetString("local.port"),
			Name:     v.GetString("local.name"),
			User:     v.GetString("local.user"),
			Password: v.GetString("local.password"),
		},
		Compute: ComputeConfig{
			AuthURL:    v.GetString("compute.auth_url"),
			Username:   v.GetString("compute.username"),
			Password:   v.GetString("compute.password"),
			ProjectID:  v.GetString("compute.project_id"),
			APIVersion: v.GetString("compute.api_version"),
		},
		Schemas:         schemaMapping(v),
		WatermarkMargin: margin,
		LogLevel:        v.GetString("log.level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the schema mapping covers every logical name the
// entity queries reference. An incomplete mapping is fatal before any entity
// runs.
func (c Config) Validate() error {
	for name := range DefaultSchemas {
		if _, ok := c.Schemas[name]; !ok {
			return fmt.Errorf("schema mapping missing %q", name)
		}
	}
	return nil
}

func schemaMapping(v *viper.Viper) map[string]string {
	declared := v.GetStringMapString("schemas")
	if len(declared) == 0 {
		return DefaultSchemas
	}
	schemas := make(map[string]string, len(DefaultSchemas))
	for name, def := range DefaultSchemas {
		schemas[name] = def
		if actual, ok := declared[name]; ok && actual != "" {
			schemas[name] = actual
		}
	}
	return schemas
}
