package config

import (
	"github.com/spf13/pflag"
)

// flagDef describes a command-line flag bound to a config key
type flagDef struct {
	name      string
	configKey string
	usage     string
	kind      string // "int" or "string"
}

var configFlags = []flagDef{
	{"server-grpc-port", "server.grpc_port", "gRPC server port", "int"},
	{"server-http-port", "server.http_port", "HTTP server port", "int"},
	{"realm", "realm", "path to the realm file", "string"},
	{"issuer-url", "issuer.url", "issuer URL placed in the iss claim", "string"},
	{"issuer-ttl", "issuer.ttl", "lifetime of signed tokens, e.g. 5m", "string"},
	{"issuer-key-type", "issuer.key_type", "generated signing key type (EC-P256, EC-P384, RSA-2048, RSA-4096)", "string"},
	{"issuer-key-file", "issuer.key_file", "PEM private key used instead of a generated key", "string"},
	{"attribute-source", "attribute_source.type", "role attribute source (realm, lua)", "string"},
	{"attribute-script", "attribute_source.script_file", "Lua script for the lua attribute source", "string"},
	{"log-level", "observability.log_level", "log level (debug, info, warn, error)", "string"},
	{"log-format", "observability.log_format", "log format (json, text)", "string"},
}

// RegisterFlags adds every config flag to the flag set.
// Defaults are zero values; only flags set explicitly override other sources.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, f := range configFlags {
		switch f.kind {
		case "int":
			flags.Int(f.name, 0, f.usage)
		default:
			flags.String(f.name, "", f.usage)
		}
	}
}

// GetFlagMapping maps flag names to config keys
func GetFlagMapping() map[string]string {
	m := make(map[string]string, len(configFlags))
	for _, f := range configFlags {
		m[f.name] = f.configKey
	}
	return m
}
