// Package config loads the API runtime settings.
//
// Values are layered: built-in defaults, then a dotenv file, then process
// environment variables (COURSEHUB_*), then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"coursehub.org/internal/auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime settings. It is built once at startup and never mutated afterwards.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	DBDriver string
	DBDSN    string

	AuthSecret   string
	AuthIssuer   string
	AuthAudience string
	TokenTTL     time.Duration
	BcryptCost   int

	CORSOrigins  []string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64

	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
}

// LoadDefaults populates c with development defaults. Secret and DSN stay empty on purpose.
func (c *Config) LoadDefaults() {
	c.Env = EnvDevelopment
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":9090"
	c.DBDriver = DriverPostgres
	c.AuthIssuer = "coursehub"
	c.AuthAudience = "coursehub-clients"
	c.TokenTTL = 8 * time.Hour
	c.BcryptCost = bcrypt.DefaultCost
	c.CORSOrigins = []string{"http://localhost:3000"}
	c.RateBurst = 40
	c.RatePerSec = 20
	c.MaxBodyBytes = 1 << 20
}

// IsDevelopment reports whether internals may be exposed in error responses.
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Validate checks required values and bounds.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("auth secret is required (COURSEHUB_AUTH_SECRET)"))
	} else if len(c.AuthSecret) < auth.MinSecretBytes {
		errs = append(errs, fmt.Errorf("auth secret must be at least %d bytes", auth.MinSecretBytes))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("database DSN is required (COURSEHUB_DB_DSN)"))
	}
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DBDriver))
	}
	if strings.TrimSpace(c.AuthIssuer) == "" || strings.TrimSpace(c.AuthAudience) == "" {
		errs = append(errs, errors.New("auth issuer and audience are required"))
	}
	if c.TokenTTL < auth.MinTokenTTL {
		errs = append(errs, fmt.Errorf("token ttl must be at least %s", auth.MinTokenTTL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}
	return errors.Join(errs...)
}

// Load builds the configuration from args (without the program name).
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}

	fileVals, err := readEnvFile(fl.envFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	fl.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("COURSEHUB_ENV", &cfg.Env)
	str("COURSEHUB_HTTP_ADDR", &cfg.HTTPAddr)
	str("COURSEHUB_GRPC_ADDR", &cfg.GRPCAddr)
	str("COURSEHUB_DB_DRIVER", &cfg.DBDriver)
	str("COURSEHUB_DB_DSN", &cfg.DBDSN)
	str("COURSEHUB_AUTH_SECRET", &cfg.AuthSecret)
	str("COURSEHUB_AUTH_ISSUER", &cfg.AuthIssuer)
	str("COURSEHUB_AUTH_AUDIENCE", &cfg.AuthAudience)

	if v, ok := lookup("COURSEHUB_AUTH_TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COURSEHUB_AUTH_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if v, ok := lookup("COURSEHUB_CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("COURSEHUB_TRUSTED_PROXIES"); ok {
		prefixes, err := parsePrefixes(splitList(v))
		if err != nil {
			return fmt.Errorf("COURSEHUB_TRUSTED_PROXIES: %w", err)
		}
		cfg.TrustedProxies = prefixes
	}
	for key, dst := range map[string]*int{
		"COURSEHUB_RATE_BURST":   &cfg.RateBurst,
		"COURSEHUB_RATE_PER_SEC": &cfg.RatePerSec,
		"COURSEHUB_BCRYPT_COST":  &cfg.BcryptCost,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

type flagValues struct {
	fs       *flag.FlagSet
	envFile  string
	env      string
	httpAddr string
	grpcAddr string
	driver   string
	dsn      string
}

func parseFlags(args []string) (*flagValues, error) {
	fl := &flagValues{fs: flag.NewFlagSet("coursehub-api", flag.ContinueOnError)}
	fl.fs.SetOutput(io.Discard)
	fl.fs.StringVar(&fl.envFile, "env-file", ".env", "dotenv file to load (missing file is ignored)")
	fl.fs.StringVar(&fl.env, "env", "", "environment: development or production")
	fl.fs.StringVar(&fl.httpAddr, "http", "", "HTTP listen address")
	fl.fs.StringVar(&fl.grpcAddr, "grpc", "", "gRPC health listen address")
	fl.fs.StringVar(&fl.driver, "db-driver", "", "database driver: postgres or sqlite")
	fl.fs.StringVar(&fl.dsn, "dsn", "", "database DSN")
	if err := fl.fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return fl, nil
}

// apply copies only the flags that were set explicitly.
func (fl *flagValues) apply(cfg *Config) {
	fl.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "env":
			cfg.Env = fl.env
		case "http":
			cfg.HTTPAddr = fl.httpAddr
		case "grpc":
			cfg.GRPCAddr = fl.grpcAddr
		case "db-driver":
			cfg.DBDriver = fl.driver
		case "dsn":
			cfg.DBDSN = fl.dsn
		}
	})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePrefixes accepts CIDR ranges and bare addresses; a bare address is a
// single-host prefix.
func parsePrefixes(items []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(items))
	for _, item := range items {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}
