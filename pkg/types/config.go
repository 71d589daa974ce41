package types

import (
	"fmt"
	"net"
	"regexp"
)

func compileBodyPattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// HTTPMethod is the probe method a service monitor issues.
type HTTPMethod string

const (
	MethodGet  HTTPMethod = "GET"
	MethodPost HTTPMethod = "POST"
	MethodHead HTTPMethod = "HEAD"
)

// Alert is a tagged union over the two sink kinds a limit or a service can
// dispatch to. Exactly one of Discord/Webhook is set.
type Alert struct {
	Discord *DiscordAlert `json:"discord,omitempty"`
	Webhook *WebhookAlert `json:"webhook,omitempty"`
}

// DiscordAlert posts rich embeds to a Discord-compatible webhook URL.
type DiscordAlert struct {
	URL    string  `json:"url"`
	UserID *string `json:"user_id,omitempty"`
}

// WebhookAlert posts a flat JSON payload to an arbitrary URL.
type WebhookAlert struct {
	URL string `json:"url"`
}

// Limit is a single resource threshold with an optional grace window and
// sink.
type Limit struct {
	Limit int    `json:"limit"`
	Grace *int   `json:"grace,omitempty"`
	Alert *Alert `json:"alert,omitempty"`
}

// Limits groups the two resource limits a server config may carry.
type Limits struct {
	Temperature *Limit `json:"temperature,omitempty"`
	Usage       *Limit `json:"usage,omitempty"`
}

// ServerConfig is the raw, as-decoded form of one monitored host.
type ServerConfig struct {
	IP       string  `json:"ip"`
	Display  *string `json:"display,omitempty"`
	Port     *uint16 `json:"port,omitempty"`
	Interval *int    `json:"interval,omitempty"`
	Token    *string `json:"token,omitempty"`
	Limits   *Limits `json:"limits,omitempty"`
}

// ServiceConfig is the raw, as-decoded form of one monitored HTTP(S) service.
type ServiceConfig struct {
	Name           string      `json:"name"`
	URL            string      `json:"url"`
	Method         *HTTPMethod `json:"method,omitempty"`
	Interval       *int        `json:"interval,omitempty"`
	Timeout        *int        `json:"timeout,omitempty"`
	ExpectedStatus []int       `json:"expected_status,omitempty"`
	BodyPattern    *string     `json:"body_pattern,omitempty"`
	Grace          *int        `json:"grace,omitempty"`
	Alert          *Alert      `json:"alert,omitempty"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Kind          string `json:"backend"` // "none" or "sqlite"
	Path          string `json:"path,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// Config is the raw, as-decoded hub configuration file.
type Config struct {
	Servers  []ServerConfig `json:"servers,omitempty"`
	Services []ServiceConfig `json:"services,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

const (
	defaultServerPort     = 51243
	defaultServerInterval = 15
	defaultServiceMethod  = MethodGet
	defaultServiceInterval = 30
	defaultServiceTimeout  = 10
	defaultServiceGrace    = 1
	defaultStorageRetain   = 30
	defaultSQLitePath      = "./metrics.db"
)

// ResolvedLimit is a Limit after defaults have been applied.
type ResolvedLimit struct {
	Limit int
	Grace int
	Alert *Alert
}

// ResolvedLimits groups the resolved resource limits for a server.
type ResolvedLimits struct {
	Temperature *ResolvedLimit
	Usage       *ResolvedLimit
}

// ResolvedServerConfig is a ServerConfig with every optional field defaulted
// and validated; once built it never changes for the lifetime of the
// collector that owns it.
type ResolvedServerConfig struct {
	IP       net.IP
	Port     uint16
	Display  string
	Interval int
	Token    string
	Limits   *ResolvedLimits
}

// ServerID is the stable identity used to key per-server state everywhere:
// the bus, the alert actor and the storage rows.
func (c ResolvedServerConfig) ServerID() string {
	return fmt.Sprintf("%s:%d", c.IP.String(), c.Port)
}

// ResolvedServiceConfig is a ServiceConfig with every optional field
// defaulted and validated.
type ResolvedServiceConfig struct {
	Name           string
	URL            string
	Method         HTTPMethod
	Interval       int
	Timeout        int
	ExpectedStatus []int
	BodyPattern    *string
	Grace          int
	Alert          *Alert
}

// Resolve validates the raw server config and applies defaults, returning an
// immutable ResolvedServerConfig.
func (c ServerConfig) Resolve() (ResolvedServerConfig, error) {
	ip := net.ParseIP(c.IP)
	if ip == nil {
		return ResolvedServerConfig{}, fmt.Errorf("invalid server ip %q", c.IP)
	}

	port := uint16(defaultServerPort)
	if c.Port != nil {
		port = *c.Port
	}

	interval := defaultServerInterval
	if c.Interval != nil {
		if *c.Interval <= 0 {
			return ResolvedServerConfig{}, fmt.Errorf("server %s: interval must be positive", c.IP)
		}
		interval = *c.Interval
	}

	display := "unknown"
	if c.Display != nil {
		display = *c.Display
	}

	token := ""
	if c.Token != nil {
		token = *c.Token
	}

	var limits *ResolvedLimits
	if c.Limits != nil {
		limits = &ResolvedLimits{}
		if c.Limits.Temperature != nil {
			l, err := resolveLimit(*c.Limits.Temperature)
			if err != nil {
				return ResolvedServerConfig{}, fmt.Errorf("server %s: temperature limit: %w", c.IP, err)
			}
			limits.Temperature = &l
		}
		if c.Limits.Usage != nil {
			l, err := resolveLimit(*c.Limits.Usage)
			if err != nil {
				return ResolvedServerConfig{}, fmt.Errorf("server %s: usage limit: %w", c.IP, err)
			}
			limits.Usage = &l
		}
	}

	return ResolvedServerConfig{
		IP:       ip,
		Port:     port,
		Display:  display,
		Interval: interval,
		Token:    token,
		Limits:   limits,
	}, nil
}

func resolveLimit(l Limit) (ResolvedLimit, error) {
	if l.Limit <= 0 {
		return ResolvedLimit{}, fmt.Errorf("limit must be positive")
	}
	grace := 0
	if l.Grace != nil {
		if *l.Grace < 0 {
			return ResolvedLimit{}, fmt.Errorf("grace must not be negative")
		}
		grace = *l.Grace
	}
	return ResolvedLimit{Limit: l.Limit, Grace: grace, Alert: l.Alert}, nil
}

// Resolve validates the raw service config and applies defaults.
func (c ServiceConfig) Resolve() (ResolvedServiceConfig, error) {
	if c.Name == "" {
		return ResolvedServiceConfig{}, fmt.Errorf("service name must not be empty")
	}
	if c.URL == "" {
		return ResolvedServiceConfig{}, fmt.Errorf("service %s: url must not be empty", c.Name)
	}

	method := defaultServiceMethod
	if c.Method != nil {
		switch *c.Method {
		case MethodGet, MethodPost, MethodHead:
			method = *c.Method
		default:
			return ResolvedServiceConfig{}, fmt.Errorf("service %s: invalid method %q", c.Name, *c.Method)
		}
	}

	interval := defaultServiceInterval
	if c.Interval != nil {
		if *c.Interval <= 0 {
			return ResolvedServiceConfig{}, fmt.Errorf("service %s: interval must be positive", c.Name)
		}
		interval = *c.Interval
	}

	timeout := defaultServiceTimeout
	if c.Timeout != nil {
		if *c.Timeout <= 0 {
			return ResolvedServiceConfig{}, fmt.Errorf("service %s: timeout must be positive", c.Name)
		}
		timeout = *c.Timeout
	}

	grace := defaultServiceGrace
	if c.Grace != nil {
		if *c.Grace < 1 {
			return ResolvedServiceConfig{}, fmt.Errorf("service %s: grace must be at least 1", c.Name)
		}
		grace = *c.Grace
	}

	if c.BodyPattern != nil {
		if _, err := compileBodyPattern(*c.BodyPattern); err != nil {
			return ResolvedServiceConfig{}, fmt.Errorf("service %s: invalid body_pattern: %w", c.Name, err)
		}
	}

	return ResolvedServiceConfig{
		Name:           c.Name,
		URL:            c.URL,
		Method:         method,
		Interval:       interval,
		Timeout:        timeout,
		ExpectedStatus: c.ExpectedStatus,
		BodyPattern:    c.BodyPattern,
		Grace:          grace,
		Alert:          c.Alert,
	}, nil
}

// Resolve validates the raw storage config and applies defaults. A nil
// receiver (no storage block in the config file) resolves to the "none"
// backend.
func (c *StorageConfig) Resolve() (ResolvedStorageConfig, error) {
	if c == nil {
		return ResolvedStorageConfig{Kind: StorageNone, RetentionDays: defaultStorageRetain}, nil
	}

	retention := defaultStorageRetain
	if c.RetentionDays > 0 {
		retention = c.RetentionDays
	}

	switch c.Kind {
	case "", "none":
		return ResolvedStorageConfig{Kind: StorageNone, RetentionDays: retention}, nil
	case "sqlite":
		path := defaultSQLitePath
		if c.Path != "" {
			path = c.Path
		}
		return ResolvedStorageConfig{Kind: StorageSQLite, Path: path, RetentionDays: retention}, nil
	default:
		return ResolvedStorageConfig{}, fmt.Errorf("unknown storage kind %q", c.Kind)
	}
}

// StorageKind selects which backend implementation the storage actor wires up.
type StorageKind string

const (
	StorageNone   StorageKind = "none"
	StorageSQLite StorageKind = "sqlite"
)

// ResolvedStorageConfig is a StorageConfig with defaults applied.
type ResolvedStorageConfig struct {
	Kind          StorageKind
	Path          string
	RetentionDays int
}

// ResolvedConfig is the fully validated, default-applied hub configuration
// the supervisor builds actors from. Once returned by Resolve it never
// changes for the life of the process.
type ResolvedConfig struct {
	Servers  []ResolvedServerConfig
	Services []ResolvedServiceConfig
	Storage  ResolvedStorageConfig
}

// Resolve validates the entire raw config file, applies every field
// default and returns an immutable ResolvedConfig, or the first validation
// error encountered. A config error here is always fatal at startup —
// callers should treat any error as non-recoverable.
func (c Config) Resolve() (ResolvedConfig, error) {
	servers := make([]ResolvedServerConfig, 0, len(c.Servers))
	seenServerIDs := make(map[string]struct{}, len(c.Servers))
	for _, raw := range c.Servers {
		resolved, err := raw.Resolve()
		if err != nil {
			return ResolvedConfig{}, err
		}
		id := resolved.ServerID()
		if _, dup := seenServerIDs[id]; dup {
			return ResolvedConfig{}, fmt.Errorf("duplicate server %s", id)
		}
		seenServerIDs[id] = struct{}{}
		servers = append(servers, resolved)
	}

	services := make([]ResolvedServiceConfig, 0, len(c.Services))
	seenNames := make(map[string]struct{}, len(c.Services))
	for _, raw := range c.Services {
		resolved, err := raw.Resolve()
		if err != nil {
			return ResolvedConfig{}, err
		}
		if _, dup := seenNames[resolved.Name]; dup {
			return ResolvedConfig{}, fmt.Errorf("duplicate service name %q", resolved.Name)
		}
		seenNames[resolved.Name] = struct{}{}
		services = append(services, resolved)
	}

	storage, err := c.Storage.Resolve()
	if err != nil {
		return ResolvedConfig{}, err
	}

	return ResolvedConfig{Servers: servers, Services: services, Storage: storage}, nil
}
