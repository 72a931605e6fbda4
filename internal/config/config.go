package config

// Config is the root configuration of a rolemapper instance
type Config struct {
	Server ServerConfig `koanf:"server"`

	// Realm is the path to the realm file served by the reference host
	Realm string `koanf:"realm"`

	Issuer IssuerConfig `koanf:"issuer"`

	// Mappers lists the protocol mapper instances run for every token.
	// When empty, a single role attributes mapper with default settings is used.
	Mappers []MapperConfig `koanf:"mappers"`

	AttributeSource AttributeSourceConfig `koanf:"attribute_source"`

	// Fixtures replace outbound HTTP made by scripted attribute sources
	Fixtures []FixtureConfig `koanf:"fixtures"`

	Observability *ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds listener ports
type ServerConfig struct {
	GRPCPort int `koanf:"grpc_port"`
	HTTPPort int `koanf:"http_port"`

	// JWKSRefreshInterval is how long a built key set is served before rebuilding
	JWKSRefreshInterval string `koanf:"jwks_refresh_interval"`
}

// IssuerConfig configures token signing
type IssuerConfig struct {
	// URL is the iss claim of signed tokens
	URL string `koanf:"url"`

	// TTL is a duration string such as "5m"
	TTL string `koanf:"ttl"`

	// KeyType selects a generated in-memory key (EC-P256, EC-P384, RSA-2048, RSA-4096)
	KeyType string `koanf:"key_type"`

	// KeyFile loads a PEM private key instead of generating one
	KeyFile string `koanf:"key_file"`
}

// MapperConfig configures one protocol mapper instance
type MapperConfig struct {
	// Name is the instance name shown in listings
	Name string `koanf:"name"`

	// Type is the mapper provider id
	Type string `koanf:"type"`

	// Config holds the mapper model properties, e.g. claim.name
	Config map[string]string `koanf:"config"`

	// AttributeFilter restricts which attribute names are emitted
	AttributeFilter *AttributeFilterConfig `koanf:"attribute_filter"`

	// RoleFilter is a CEL expression selecting emitted roles
	RoleFilter string `koanf:"role_filter"`
}

// AttributeFilterConfig names attributes to allow or deny. Allow wins when both are set.
type AttributeFilterConfig struct {
	Allow []string `koanf:"allow"`
	Deny  []string `koanf:"deny"`
}

// AttributeSourceConfig selects where role attributes come from
type AttributeSourceConfig struct {
	// Type is "realm" (attributes stored on the realm's roles) or "lua"
	Type string `koanf:"type"`

	// Script is an inline Lua script (lua type only)
	Script string `koanf:"script"`

	// ScriptFile is a path to a Lua script (lua type only)
	ScriptFile string `koanf:"script_file"`

	// Config is exposed to the script through config.get()
	Config map[string]any `koanf:"config"`

	HTTPConfig *HTTPConfig `koanf:"http_config"`

	// Cache wraps the lua source with a per-role cache
	Cache *AttributeCacheConfig `koanf:"cache"`
}

// AttributeCacheConfig configures role attribute caching
type AttributeCacheConfig struct {
	// Type is "memory" or "distributed" (groupcache)
	Type string `koanf:"type"`

	// TTL is how long a lookup is reused, e.g. 5m. Empty never expires.
	TTL string `koanf:"ttl"`

	// GroupName and SizeBytes apply to the distributed cache
	GroupName string `koanf:"group_name"`
	SizeBytes int64  `koanf:"size_bytes"`
}

// HTTPConfig configures the http service available to scripts
type HTTPConfig struct {
	Timeout string `koanf:"timeout"`
}

// FixtureConfig is one canned HTTP response
type FixtureConfig struct {
	// Type is the fixture type. Only "http_rule" is supported.
	Type string `koanf:"type"`

	Request  FixtureRequestConfig  `koanf:"request"`
	Response FixtureResponseConfig `koanf:"response"`
}

// FixtureRequestConfig matches outbound requests
type FixtureRequestConfig struct {
	Method  string            `koanf:"method"`
	URL     string            `koanf:"url"`
	URLType string            `koanf:"url_type"`
	Headers map[string]string `koanf:"headers"`
}

// FixtureResponseConfig is the canned response
type FixtureResponseConfig struct {
	StatusCode int               `koanf:"status"`
	Headers    map[string]string `koanf:"headers"`
	Body       string            `koanf:"body"`
}

// ObservabilityConfig configures logging and observers
type ObservabilityConfig struct {
	// Type is logging, noop or composite
	Type string `koanf:"type"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	TokenIssuance         *EventLoggingConfig `koanf:"token_issuance"`
	RoleAttributesMapping *EventLoggingConfig `koanf:"role_attributes_mapping"`

	// Observers are the children of a composite observer
	Observers []ObservabilityConfig `koanf:"observers"`
}

// EventLoggingConfig overrides logging for one event
type EventLoggingConfig struct {
	Enabled  *bool  `koanf:"enabled"`
	LogLevel string `koanf:"log_level"`
}
