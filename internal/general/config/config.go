package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvEndpoint overrides transport.endpoint when set (environment or .env).
const EnvEndpoint = "CAMPUS_TRANSPORT_ENDPOINT"

// Route sources
const (
	RouteBuiltin  = "builtin"
	RouteFile     = "file"
	RoutePostgres = "postgres"
)

// Location providers
const (
	LocationNone   = "none"
	LocationStatic = "static"
	LocationHTTP   = "http"
)

type Config struct {
	Transport struct {
		Endpoint             string        `yaml:"endpoint" validate:"required"`
		Topic                string        `yaml:"topic"`
		Dialect              string        `yaml:"dialect" validate:"omitempty,oneof=v2 legacy"`
		VehicleRemovalEvents bool          `yaml:"vehicle_removal_events"`
		HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
		JoinTimeout          time.Duration `yaml:"join_timeout"`
		ReconnectInitial     time.Duration `yaml:"reconnect_initial"`
		ReconnectMax         time.Duration `yaml:"reconnect_max"`
		OutboundBuffer       int           `yaml:"outbound_buffer" validate:"gte=0"`
	} `yaml:"transport"`

	Rider struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"rider"`

	Location struct {
		Provider string        `yaml:"provider" validate:"omitempty,oneof=none static http"`
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout"`
		Lat      float64       `yaml:"lat" validate:"gte=-90,lte=90"`
		Lng      float64       `yaml:"lng" validate:"gte=-180,lte=180"`
	} `yaml:"location"`

	Route struct {
		Source  string `yaml:"source" validate:"omitempty,oneof=builtin file postgres"`
		File    string `yaml:"file"`
		Version string `yaml:"version"`
	} `yaml:"route"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	Mirror MirrorConfig `yaml:"mirror"`

	HTTP struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// MirrorConfig is the RabbitMQ event mirror.
type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Exchange string `yaml:"exchange"`
	Buffer   int    `yaml:"buffer" validate:"gte=0"`
}

// URL is the AMQP connection string.
func (m MirrorConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(m.User, m.Password),
		Host:   fmt.Sprintf("%s:%d", m.Host, m.Port),
		Path:   "/",
	}
	return u.String()
}

// LoadFromFile loads config from a YAML file, applies the endpoint override
// and defaults, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	// a missing .env is fine; the real environment wins over it
	_ = godotenv.Load()

	return Parse(data)
}

// Parse decodes YAML config bytes and finishes them like LoadFromFile.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if endpoint := strings.TrimSpace(os.Getenv(EnvEndpoint)); endpoint != "" {
		cfg.Transport.Endpoint = endpoint
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Transport
	if cfg.Transport.Topic == "" {
		cfg.Transport.Topic = "transport:app"
	}
	if cfg.Transport.Dialect == "" {
		cfg.Transport.Dialect = "v2"
	}
	if cfg.Transport.HeartbeatInterval == 0 {
		cfg.Transport.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Transport.JoinTimeout == 0 {
		cfg.Transport.JoinTimeout = 10 * time.Second
	}
	if cfg.Transport.ReconnectInitial == 0 {
		cfg.Transport.ReconnectInitial = time.Second
	}
	if cfg.Transport.ReconnectMax == 0 {
		cfg.Transport.ReconnectMax = 30 * time.Second
	}
	if cfg.Transport.OutboundBuffer == 0 {
		cfg.Transport.OutboundBuffer = 64
	}

	// Rider
	if cfg.Rider.RefreshInterval == 0 {
		cfg.Rider.RefreshInterval = 30 * time.Second
	}

	// Location
	if cfg.Location.Provider == "" {
		cfg.Location.Provider = LocationNone
	}
	if cfg.Location.Timeout == 0 {
		cfg.Location.Timeout = 15 * time.Second
	}

	// Route
	if cfg.Route.Source == "" {
		cfg.Route.Source = RouteBuiltin
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Mirror
	if cfg.Mirror.Host == "" {
		cfg.Mirror.Host = "localhost"
	}
	if cfg.Mirror.Port == 0 {
		cfg.Mirror.Port = 5672
	}
	if cfg.Mirror.Exchange == "" {
		cfg.Mirror.Exchange = "campus_transport_events"
	}
	if cfg.Mirror.Buffer == 0 {
		cfg.Mirror.Buffer = 256
	}

	// HTTP
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8090"
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
}

var validate = validator.New()

// validate checks tagged fields, then the rules that span sections.
func (c *Config) validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Namespace()), fe.Tag()))
		}
	}

	// Transport
	if c.Transport.Endpoint != "" {
		u, err := url.Parse(c.Transport.Endpoint)
		if err != nil || u.Host == "" {
			problems = append(problems, "transport.endpoint must be an absolute URL")
		} else {
			switch u.Scheme {
			case "http", "https", "ws", "wss":
			default:
				problems = append(problems, "transport.endpoint scheme must be http, https, ws or wss")
			}
		}
	}
	if c.Transport.ReconnectMax < c.Transport.ReconnectInitial {
		problems = append(problems, "transport.reconnect_max must be >= transport.reconnect_initial")
	}
	if c.Transport.HeartbeatInterval < time.Second {
		problems = append(problems, "transport.heartbeat_interval must be >= 1s")
	}

	// Rider
	if c.Rider.RefreshInterval < time.Second {
		problems = append(problems, "rider.refresh_interval must be >= 1s")
	}

	// Location
	if c.Location.Provider == LocationHTTP && c.Location.URL == "" {
		problems = append(problems, "location.url is required for the http provider")
	}

	// Route
	switch c.Route.Source {
	case RouteFile:
		if c.Route.File == "" {
			problems = append(problems, "route.file is required when route.source is file")
		}
	case RoutePostgres:
		if c.Route.Version == "" {
			problems = append(problems, "route.version is required when route.source is postgres")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			problems = append(problems, "database.port must be in 1..65535")
		}
		if c.Database.User == "" {
			problems = append(problems, "database.user is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.database is required")
		}
	}

	// Mirror
	if c.Mirror.Enabled {
		if c.Mirror.Port <= 0 || c.Mirror.Port > 65535 {
			problems = append(problems, "mirror.port must be in 1..65535")
		}
		if c.Mirror.User == "" {
			problems = append(problems, "mirror.user is required")
		}
		if c.Mirror.Password == "" {
			problems = append(problems, "mirror.password is required")
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
