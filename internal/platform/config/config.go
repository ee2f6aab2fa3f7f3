package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultShutdownTimeout    = 20 * time.Second
	defaultRequestTimeout     = 45 * time.Second
	defaultERPTimeout         = 20 * time.Second
	defaultGeolocationTimeout = 15 * time.Second
	defaultGeocoderURL        = "https://nominatim.openstreetmap.org/"
	defaultGeocoderUserAgent  = "petcorner-storefront/1.0"
	defaultLogLevel           = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	ERP         ERPConfig
	Store       StoreConfig
	Geolocation GeolocationConfig
	Secrets     SecretsConfig
	Logging     LoggingConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// ERPConfig points at the ERP REST API that stores orders.
type ERPConfig struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	ThirdPartyID       string
	SendIdempotencyKey bool
}

// StoreConfig locates the shop deliveries leave from. HasLocation is false when either
// coordinate is unset, in which case delivery cost stays unknown.
type StoreConfig struct {
	Latitude    float64
	Longitude   float64
	HasLocation bool
}

// GeolocationConfig controls address geocoding used when the device sends no position.
type GeolocationConfig struct {
	Enabled     bool
	Timeout     time.Duration
	GeocoderURL string
	UserAgent   string
}

// SecretsConfig configures Secret Manager lookups for secret:// references.
type SecretsConfig struct {
	ProjectID string
}

// LoggingConfig selects log verbosity.
type LoggingConfig struct {
	Level string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns the effective value for key after applying the same precedence as Load. main uses
// it to read the secrets project before a resolver exists.
func Lookup(key string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

// Load assembles the configuration from defaults, .env overrides, the process environment and an
// explicit map, in increasing precedence, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		ERP: ERPConfig{
			BaseURL:            stringWithDefault(lookup, "STOREFRONT_ERP_BASE_URL", ""),
			APIKey:             stringWithDefault(lookup, "STOREFRONT_ERP_API_KEY", ""),
			Timeout:            durationWithDefault(lookup, "STOREFRONT_ERP_TIMEOUT", defaultERPTimeout),
			ThirdPartyID:       stringWithDefault(lookup, "STOREFRONT_ERP_THIRDPARTY_ID", ""),
			SendIdempotencyKey: boolWithDefault(lookup, "STOREFRONT_ERP_SEND_IDEMPOTENCY_KEY", false),
		},
		Geolocation: GeolocationConfig{
			Enabled:     boolWithDefault(lookup, "STOREFRONT_GEOLOCATION_ENABLED", true),
			Timeout:     durationWithDefault(lookup, "STOREFRONT_GEOLOCATION_TIMEOUT", defaultGeolocationTimeout),
			GeocoderURL: stringWithDefault(lookup, "STOREFRONT_GEOLOCATION_GEOCODER_URL", defaultGeocoderURL),
			UserAgent:   stringWithDefault(lookup, "STOREFRONT_GEOLOCATION_USER_AGENT", defaultGeocoderUserAgent),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
	}

	var invalid []string
	lat, latOK, latErr := floatValue(lookup, "STOREFRONT_STORE_LAT")
	lon, lonOK, lonErr := floatValue(lookup, "STOREFRONT_STORE_LON")
	if latErr != nil || (latOK && math.Abs(lat) > 90) {
		invalid = append(invalid, "Store.Latitude")
	}
	if lonErr != nil || (lonOK && math.Abs(lon) > 180) {
		invalid = append(invalid, "Store.Longitude")
	}
	if latOK && lonOK {
		cfg.Store = StoreConfig{Latitude: lat, Longitude: lon, HasLocation: true}
	}

	apiKey, err := resolveSecret(ctx, cfg.ERP.APIKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.ERP.APIKey = apiKey

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := invalid
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.ERP.BaseURL == "" {
		missing = append(missing, "ERP.BaseURL")
	}
	if cfg.ERP.APIKey == "" {
		missing = append(missing, "ERP.APIKey")
	}
	if cfg.ERP.Timeout <= 0 {
		missing = append(missing, "ERP.Timeout")
	}
	if cfg.Geolocation.Timeout <= 0 {
		missing = append(missing, "Geolocation.Timeout")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func floatValue(lookup func(string) (string, bool), key string) (float64, bool, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false, fmt.Errorf("config: %s is not a coordinate", key)
	}
	return parsed, true, nil
}
