// Package config loads the gateway's structured configuration document via
// spf13/viper (file + environment overrides) and spf13/pflag (a single
// --config flag), the pattern cdc-worker's command wiring uses to bind
// flags into viper before unmarshalling into a typed struct. Secret values
// referenced as "${vault:path#field}" are resolved through
// internal/secrets at load time.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arc-self/bacnet-eventgateway/internal/secrets"
)

// Server is the *server* config section.
type Server struct {
	DeviceInstance             uint32 `mapstructure:"deviceInstance"`
	DeviceName                 string `mapstructure:"deviceName"`
	DeviceDescription          string `mapstructure:"deviceDescription"`
	VendorID                   uint16 `mapstructure:"vendorId"`
	VendorName                 string `mapstructure:"vendorName"`
	ModelName                  string `mapstructure:"modelName"`
	ApplicationSoftwareVersion string `mapstructure:"applicationSoftwareVersion"`
	Location                   string `mapstructure:"location"`
	CovLifetimeSeconds         uint32 `mapstructure:"covLifetime"`
	MaxCovSubscriptions        int    `mapstructure:"maxCovSubscriptions"`
}

// SecureTransport is the *secure-transport* section (BACnet/SC). The
// gateway only reads these values and hands them to the external BACnet
// object layer; it does not implement TLS/PKI itself (spec.md §1 Out of
// scope).
type SecureTransport struct {
	Enabled            bool   `mapstructure:"enabled"`
	HubURI             string `mapstructure:"hubUri"`
	FailoverHubURI     string `mapstructure:"failoverHubUri"`
	CertificateFile    string `mapstructure:"certificateFile"`
	PrivateKeyFile     string `mapstructure:"privateKeyFile"`
	CACertificateFile  string `mapstructure:"caCertificateFile"`
	HubFunctionEnabled bool   `mapstructure:"hubFunctionEnabled"`
}

// LegacyTransport is the *legacy-transport* section (BACnet/IP).
type LegacyTransport struct {
	Port             int    `mapstructure:"port"`
	Interface        string `mapstructure:"interface"`
	BroadcastAddress string `mapstructure:"broadcastAddress"`
}

// EventStore is the *event-store* section.
type EventStore struct {
	ConnectionString     string `mapstructure:"connectionString"`
	TLSEnabled           bool   `mapstructure:"tlsEnabled"`
	TLSVerifyCert        bool   `mapstructure:"tlsVerifyCert"`
	TLSCAFile            string `mapstructure:"tlsCaFile"`
	ReconnectDelayMs     int    `mapstructure:"reconnectDelayMs"`
	MaxReconnectAttempts int    `mapstructure:"maxReconnectAttempts"`
}

// Cache is the *cache* section.
type Cache struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Password          string `mapstructure:"password"`
	Database          int    `mapstructure:"database"`
	KeyPrefix         string `mapstructure:"keyPrefix"`
	ConnectionTimeoutMs int  `mapstructure:"connectionTimeoutMs"`
	CommandTimeoutMs  int    `mapstructure:"commandTimeoutMs"`
}

// Device is one entry of the *devices* ordered list.
type Device struct {
	SubscriptionID       string `mapstructure:"subscriptionId"`
	StreamName           string `mapstructure:"streamName"`
	GroupName            string `mapstructure:"groupName"`
	StartFrom            string `mapstructure:"startFrom"`
	StartPosition        uint64 `mapstructure:"startPosition"`
	ObjectInstanceOffset uint32 `mapstructure:"objectInstanceOffset"`
	Enabled              bool   `mapstructure:"enabled"`
}

// Logging is the *logging* section.
type Logging struct {
	Level           string `mapstructure:"level"`
	Outputs         int    `mapstructure:"outputs"`
	Format          string `mapstructure:"format"`
	File            string `mapstructure:"file"`
	MaxFileSizeMB   int    `mapstructure:"max_file_size"`
	MaxBackupFiles  int    `mapstructure:"max_backup_files"`
	SyslogFacility  string `mapstructure:"syslog_facility"`
	Colorize        bool   `mapstructure:"colorize"`
}

// Health is the *health* section.
type Health struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bindAddress"`
}

// Vault is connection info for resolving ${vault:...} references; not a
// spec.md §6 section itself (Vault isn't named there). It is read from the
// document's own "vault" section (address, token), not from the
// VAULT_ADDR/VAULT_TOKEN environment variables; an empty address disables
// secret resolution.
type Vault struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// Config is the full structured document, spec.md §6.
type Config struct {
	Server          Server          `mapstructure:"server"`
	SecureTransport SecureTransport `mapstructure:"secure-transport"`
	LegacyTransport LegacyTransport `mapstructure:"legacy-transport"`
	EventStore      EventStore      `mapstructure:"event-store"`
	Cache           Cache           `mapstructure:"cache"`
	Devices         []Device        `mapstructure:"devices"`
	Logging         Logging         `mapstructure:"logging"`
	Health          Health          `mapstructure:"health"`
	Vault           Vault           `mapstructure:"vault"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.covLifetime", 300)
	v.SetDefault("server.maxCovSubscriptions", 100)
	v.SetDefault("legacy-transport.port", 47808)
	v.SetDefault("cache.keyPrefix", "bacnet:")
	v.SetDefault("cache.connectionTimeoutMs", 2000)
	v.SetDefault("cache.commandTimeoutMs", 1000)
	v.SetDefault("event-store.reconnectDelayMs", 500)
	v.SetDefault("event-store.maxReconnectAttempts", -1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("health.port", 9090)
	v.SetDefault("health.bindAddress", "0.0.0.0")
}

// Load parses --config (and BACNET_GATEWAY_* environment overrides) into a
// Config, resolving any ${vault:path#field} string values it finds in the
// event-store connection string and cache password.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("bacnet-eventgateway", pflag.ContinueOnError)
	configPath := flags.String("config", "config.yaml", "path to configuration file")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(*configPath)
	v.SetEnvPrefix("BACNET_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", *configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("config: resolve secrets: %w", err)
	}

	return &cfg, nil
}

func resolveSecrets(cfg *Config) error {
	if cfg.Vault.Address == "" {
		return nil
	}
	mgr, err := secrets.NewManager(cfg.Vault.Address, cfg.Vault.Token)
	if err != nil {
		return err
	}

	resolved, err := resolveField(mgr, cfg.EventStore.ConnectionString)
	if err != nil {
		return fmt.Errorf("event-store.connectionString: %w", err)
	}
	cfg.EventStore.ConnectionString = resolved

	resolved, err = resolveField(mgr, cfg.Cache.Password)
	if err != nil {
		return fmt.Errorf("cache.password: %w", err)
	}
	cfg.Cache.Password = resolved
	return nil
}

// resolveField substitutes a "${vault:path#field}" placeholder, leaving
// ordinary values untouched.
func resolveField(mgr *secrets.Manager, value string) (string, error) {
	const prefix, suffix = "${vault:", "}"
	if !strings.HasPrefix(value, prefix) || !strings.HasSuffix(value, suffix) {
		return value, nil
	}
	ref := strings.TrimSuffix(strings.TrimPrefix(value, prefix), suffix)
	path, field, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("malformed vault reference %q, expected path#field", ref)
	}
	return mgr.ResolveString(path, field)
}

// ReconnectDelay converts ReconnectDelayMs to a time.Duration for
// convenience at call sites.
func (c *EventStore) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}
