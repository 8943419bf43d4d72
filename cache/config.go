package cache

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"
)

// Backends accepted in Config.Backend.
const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects and addresses the store a Cache is built on.
type Config struct {
	// Backend is one of the Backend constants. Empty means BackendMongo.
	Backend string
	// ConnectionString is a MongoDB URI, a Redis URL or a SQLite path.
	ConnectionString string
	// ClientOptions replaces ConnectionString for MongoDB. Only one of the two
	// may be set.
	ClientOptions *options.ClientOptions
	// DatabaseName is the MongoDB database.
	DatabaseName string
	// CollectionName is the MongoDB collection, the Redis key prefix or the
	// SQLite table.
	CollectionName string
	// ExpiredScanInterval is the minimum time between sweeps. Zero or
	// negative uses the 5 minute default.
	ExpiredScanInterval time.Duration
	// QueryTimeout bounds every store call. Zero or negative uses
	// DefaultQueryTimeout.
	QueryTimeout time.Duration
}

func (c Config) backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	if b == "" {
		return BackendMongo
	}
	return b
}

// Validate reports the first problem that would stop a Cache from being
// built on c. Every error matches ErrInvalidConfiguration.
func (c Config) Validate() error {
	backend := c.backend()
	switch backend {
	case BackendMongo, BackendRedis, BackendSQLite, BackendMemory:
	default:
		return invalidf("unknown backend %q", c.Backend)
	}
	if c.ConnectionString != "" && c.ClientOptions != nil {
		return invalidf("only one of ConnectionString and ClientOptions can be set")
	}
	if c.ClientOptions != nil && backend != BackendMongo {
		return invalidf("ClientOptions is only supported by the %s backend", BackendMongo)
	}
	if backend == BackendMemory {
		return nil
	}
	if c.ConnectionString == "" && c.ClientOptions == nil {
		if backend == BackendMongo {
			return invalidf("ConnectionString or ClientOptions cannot be empty")
		}
		return invalidf("ConnectionString cannot be empty")
	}
	if backend == BackendMongo && c.DatabaseName == "" {
		return invalidf("DatabaseName cannot be empty")
	}
	if c.CollectionName == "" {
		return invalidf("CollectionName cannot be empty")
	}
	return nil
}

type fileConfig struct {
	Backend             string `yaml:"backend"`
	ConnectionString    string `yaml:"connection_string"`
	DatabaseName        string `yaml:"database"`
	CollectionName      string `yaml:"collection"`
	ExpiredScanInterval string `yaml:"expired_scan_interval"`
	QueryTimeout        string `yaml:"query_timeout"`
}

// ParseConfig decodes a YAML config. Environment variables written as $VAR
// or ${VAR} are expanded first, and durations accept day and week units such
// as "1d12h".
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return Config{}, errors.Mark(errors.Wrap(err, "error parsing cache config"), ErrInvalidConfiguration)
	}
	scan, err := parseDuration("expired_scan_interval", fc.ExpiredScanInterval)
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseDuration("query_timeout", fc.QueryTimeout)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Backend:             fc.Backend,
		ConnectionString:    fc.ConnectionString,
		DatabaseName:        fc.DatabaseName,
		CollectionName:      fc.CollectionName,
		ExpiredScanInterval: scan,
		QueryTimeout:        timeout,
	}, nil
}

// LoadConfig reads and parses the YAML config at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "error reading cache config %s", path)
	}
	return ParseConfig(data)
}

func parseDuration(field, val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "invalid %s", field), ErrInvalidConfiguration)
	}
	return d, nil
}
