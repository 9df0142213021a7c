package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`

	Store StoreConfig `koanf:"store" validate:"required"`

	Cache CacheConfig `koanf:"cache"`

	// Pool sizes the Store Handle Pool (spec §4.1, C1). Read-only bbolt
	// handles are opened once at startup; each worker identity is hashed to
	// a fixed handle slot.
	Pool int `koanf:"pool" validate:"required,gte=1,lte=256"`

	NegativeFilter NegativeFilterConfig `koanf:"negativefilter"`

	// Terminate carries the sinkhole address pools used by Terminate outcomes.
	Terminate TerminateConfig `koanf:"terminate"`

	// Forward carries the upstream server pools used by ForwardBlock and
	// ForwardAllow outcomes.
	Forward ForwardConfig `koanf:"forward"`
}

type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type StoreConfig struct {
	// Path is the filesystem path to the indexed policy store (spec §3).
	// May be left empty; Open falls back to the POLICY_STORE_PATH
	// environment variable directly (spec §6 "Environment"), and an absent
	// store is not fatal — every lookup then returns NONE.
	Path string `koanf:"path"`
}

type CacheConfig struct {
	// Size is the Recency Cache (C4) capacity; 0 disables caching.
	Size int `koanf:"size" validate:"gte=0"`
}

type NegativeFilterConfig struct {
	// TargetFPRate is the Negative Filter's (C3) target false-positive rate.
	// default: 0.01
	TargetFPRate float64 `koanf:"fprate" validate:"required,gt=0,lt=1"`
}

type TerminateConfig struct {
	// V4 is the sinkhole address pool used to answer Terminate outcomes for
	// A queries. default: 0.0.0.0
	V4 []string `koanf:"v4" validate:"required,dive,ip4_addr"`
	// V6 is the sinkhole address pool used to answer Terminate outcomes for
	// AAAA queries. default: ::
	V6 []string `koanf:"v6" validate:"required,dive,ip6_addr"`
}

type ForwardConfig struct {
	// Block is the upstream pool for ForwardBlock outcomes, "ip:port" format.
	Block []string `koanf:"block" validate:"omitempty,dive,ip_port"`
	// Allow is the upstream pool for ForwardAllow outcomes, "ip:port" format.
	// default: 1.1.1.1:53, 1.0.0.1:53
	Allow []string `koanf:"allow" validate:"omitempty,dive,ip_port"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings
// for the policy core: a disabled store path (resolved from the environment
// at Open), a 32-handle pool, a 10000-entry recency cache, a 1% bloom
// target false-positive rate, and an allow pool pointed at public resolvers.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Store: StoreConfig{
		Path: "",
	},
	Cache: CacheConfig{
		Size: 10000,
	},
	Pool: 32,
	NegativeFilter: NegativeFilterConfig{
		TargetFPRate: 0.01,
	},
	Terminate: TerminateConfig{
		V4: []string{"0.0.0.0"},
		V6: []string{"::"},
	},
	Forward: ForwardConfig{
		Block: []string{},
		Allow: []string{"1.1.1.1:53", "1.0.0.1:53"},
	},
}

// validIPPort validates whether the provided field value is a valid IP address and port combination.
// It expects the value to be in the format "IP:Port". The function returns true if the IP address
// is valid and both the IP and port are non-empty; otherwise, it returns false.
func validIPPort(fl validator.FieldLevel) bool {
	// stringify the field value to get the IP:Port format.
	addr := fl.Field().String()
	// Split the address into IP and port.
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	// Check if the IP address is valid.
	if net.ParseIP(ip) == nil {
		return false
	}
	// Check if the port is a valid number between 1 and 65535.
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// validIP4Addr validates that the field is a bare, parseable IPv4 address.
func validIP4Addr(fl validator.FieldLevel) bool {
	ip := net.ParseIP(fl.Field().String())
	return ip != nil && ip.To4() != nil
}

// validIP6Addr validates that the field is a bare, parseable IPv6 address.
func validIP6Addr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil && strings.Contains(addr, ":")
}

// envLoader is a function that loads environment variables with the prefix "POLICY_".
// It transforms the keys to lowercase and removes the prefix, and replaces _ with .
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	// Load environment variables with prefix "POLICY_".
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "POLICY_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "POLICY_")), "_", ".")
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf instance
// using the structs provider and the DEFAULT_APP_CONFIG struct. It returns an error
// if loading fails.
var defaultLoader = func(k *koanf.Koanf) error {
	// Load default values using structs provider.
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ip_port", "ip4_addr", and
// "ip6_addr" validation tags with the provided validator.
// Returns an error if registration fails.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	if err := v.RegisterValidation("ip4_addr", validIP4Addr); err != nil {
		return err
	}
	return v.RegisterValidation("ip6_addr", validIP6Addr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	// Load environment variables with prefix "POLICY_", using koanf/providers/env/v2 and Opt pattern.
	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	// Unmarshal the loaded configuration into AppConfig struct.
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Validate the configuration.
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Register the custom validation functions for address formats.
	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
