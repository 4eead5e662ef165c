// Package config loads datafetch settings from CAPO-style profiles.
//
// A profile named X is a Java properties file X.properties, looked for in
// the directories listed in $DATAFETCH_PATH (colon separated), then in
// ~/.datafetch, then in /etc/datafetch. Key lookups are case-insensitive,
// matching CAPO behavior. The loaded Config is an explicit value injected
// into the components that need it, never ambient state.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/spf13/viper"

	"github.com/dmitrijs2005/datafetch/internal/common"
)

// Property keys read from the profile.
const (
	prefix = "edu.nrao.archive.datafetcher.DataFetcherSettings."

	// Required.
	KeyLocatorServiceURL = prefix + "locatorServiceUrlPrefix"
	KeyExecutionSite     = prefix + "executionSite"
	KeyThreadsPerHost    = prefix + "defaultThreadsPerHost"

	// Optional, with defaults.
	KeyServiceTimeout = prefix + "serviceTimeout"
	KeyMaxRedirects   = prefix + "maxRedirects"
	KeyRetryCount     = prefix + "retryCount"
	KeyRetryInterval  = prefix + "retryInterval"
	KeyMaxConcurrent  = prefix + "maxConcurrentFetches"

	// Required only for identifier types that consult the archive database.
	KeyMetadataJdbcURL  = "metadataDatabase.jdbcUrl"
	KeyMetadataUser     = "metadataDatabase.jdbcUsername"
	KeyMetadataPassword = "metadataDatabase.jdbcPassword"
)

// EnvProfile is consulted when no profile is passed explicitly.
const EnvProfile = "DATAFETCH_PROFILE"

// EnvPath lists extra directories searched for profile files, colon
// separated, ahead of the per-user and system locations.
const EnvPath = "DATAFETCH_PATH"

// Config holds the runtime settings of one invocation.
type Config struct {
	Profile           string
	LocatorServiceURL string
	ExecutionSite     string
	ThreadsPerHost    int

	ServiceTimeout time.Duration
	MaxRedirects   int
	RetryCount     int
	RetryInterval  time.Duration
	MaxConcurrent  int

	jdbcURL      string
	jdbcUser     string
	jdbcPassword string
}

// Load reads the named profile and validates the required settings. An
// empty profile falls back to $DATAFETCH_PROFILE; having neither is a
// configuration error.
func Load(profile string) (*Config, error) {
	if profile == "" {
		profile = os.Getenv(EnvProfile)
	}
	if profile == "" {
		return nil, fmt.Errorf("set --profile or %s: %w", EnvProfile, common.ErrNoProfile)
	}

	path, err := findProfile(profile)
	if err != nil {
		return nil, err
	}

	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %s: %w", profile, err, common.ErrNoProfile)
	}

	v := viper.New()
	setDefaults(v)
	m := make(map[string]any, len(props.Keys()))
	for k, val := range props.Map() {
		m[k] = val
	}
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("profile %q: %s: %w", profile, err, common.ErrNoProfile)
	}

	cfg := &Config{Profile: profile}

	if cfg.LocatorServiceURL, err = requiredString(v, KeyLocatorServiceURL); err != nil {
		return nil, err
	}
	if cfg.ExecutionSite, err = requiredString(v, KeyExecutionSite); err != nil {
		return nil, err
	}
	if cfg.ThreadsPerHost, err = positiveInt(v, KeyThreadsPerHost); err != nil {
		return nil, err
	}

	if cfg.ServiceTimeout, err = durationSetting(v, KeyServiceTimeout); err != nil {
		return nil, err
	}
	if cfg.RetryInterval, err = durationSetting(v, KeyRetryInterval); err != nil {
		return nil, err
	}
	if cfg.MaxRedirects, err = intSetting(v, KeyMaxRedirects); err != nil {
		return nil, err
	}
	if cfg.RetryCount, err = intSetting(v, KeyRetryCount); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent, err = positiveInt(v, KeyMaxConcurrent); err != nil {
		return nil, err
	}

	cfg.jdbcURL = strings.TrimSpace(v.GetString(KeyMetadataJdbcURL))
	cfg.jdbcUser = strings.TrimSpace(v.GetString(KeyMetadataUser))
	cfg.jdbcPassword = v.GetString(KeyMetadataPassword)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServiceTimeout, "10s")
	v.SetDefault(KeyMaxRedirects, "5")
	v.SetDefault(KeyRetryCount, "3")
	v.SetDefault(KeyRetryInterval, "1s")
	v.SetDefault(KeyMaxConcurrent, "16")
}

// searchPath lists the directories consulted for profile files, in order.
func searchPath() []string {
	var dirs []string
	for _, d := range filepath.SplitList(os.Getenv(EnvPath)) {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+common.AppName))
	}
	return append(dirs, filepath.Join("/etc", common.AppName))
}

func findProfile(profile string) (string, error) {
	name := profile + ".properties"
	dirs := searchPath()
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found in %s: %w", name, strings.Join(dirs, ":"), common.ErrNoProfile)
}

func requiredString(v *viper.Viper, key string) (string, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return "", fmt.Errorf("missing required setting %q: %w", key, common.ErrMissingSetting)
	}
	return s, nil
}

func intSetting(v *viper.Viper, key string) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("setting %q: %q is not a non-negative integer: %w", key, s, common.ErrMissingSetting)
	}
	return n, nil
}

func positiveInt(v *viper.Viper, key string) (int, error) {
	s, err := requiredString(v, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("setting %q: %q is not a positive integer: %w", key, s, common.ErrMissingSetting)
	}
	return n, nil
}

func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("setting %q: %q is not a positive duration: %w", key, s, common.ErrMissingSetting)
	}
	return d, nil
}

// MetadataDSN converts the profile's JDBC connection settings into a DSN
// for database/sql with the pgx driver. Identifier types that never touch
// the archive database never call this, so the metadata keys are demanded
// only here.
func (c *Config) MetadataDSN() (string, error) {
	if c.jdbcURL == "" {
		return "", fmt.Errorf("missing required setting %q: %w", KeyMetadataJdbcURL, common.ErrMissingSetting)
	}
	if c.jdbcUser == "" {
		return "", fmt.Errorf("missing required setting %q: %w", KeyMetadataUser, common.ErrMissingSetting)
	}
	return pgDSN(c.jdbcURL, c.jdbcUser, c.jdbcPassword)
}

// pgDSN rewrites jdbc:postgresql://host:port/db into a postgres:// URL
// carrying the given credentials.
func pgDSN(jdbcURL, user, password string) (string, error) {
	rest, ok := strings.CutPrefix(jdbcURL, "jdbc:")
	if !ok {
		return "", fmt.Errorf("setting %q: %q is not a jdbc url: %w", KeyMetadataJdbcURL, jdbcURL, common.ErrMissingSetting)
	}
	u, err := url.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("setting %q: %s: %w", KeyMetadataJdbcURL, err, common.ErrMissingSetting)
	}
	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return "", fmt.Errorf("setting %q: unsupported driver %q: %w", KeyMetadataJdbcURL, u.Scheme, common.ErrMissingSetting)
	}
	u.Scheme = "postgres"
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String(), nil
}
