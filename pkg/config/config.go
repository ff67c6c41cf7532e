package config

import (
    "errors"
    "flag"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"

    "github.com/alim08/coingraph/pkg/validation"
)

const (
    StoreNeo4j  = "neo4j"
    StoreMemory = "memory"
)

type Neo4j struct {
    URI      string `yaml:"uri"`
    User     string `yaml:"user"`
    Password string `yaml:"password"`
    Database string `yaml:"database"`
}

type Config struct {
    DataDir    string `yaml:"data_dir" validate:"required"`
    LedgerPath string `yaml:"ledger_path" validate:"required"`

    SourceURL    string        `yaml:"source_url" validate:"required,url"`
    SourceAPIKey string        `yaml:"source_api_key"`
    HTTPTimeout  time.Duration `yaml:"http_timeout" validate:"gt=0"`

    FetchInterval    time.Duration `yaml:"fetch_interval" validate:"gt=0"`
    PushInterval     time.Duration `yaml:"push_interval" validate:"gt=0"`
    PushInitialDelay time.Duration `yaml:"push_initial_delay" validate:"gte=0"`
    SimulateInterval time.Duration `yaml:"simulate_interval" validate:"gt=0"`
    // SweepInterval of zero leaves the sweeper out of the pipeline.
    SweepInterval   time.Duration `yaml:"sweep_interval" validate:"gte=0"`
    RetentionWindow time.Duration `yaml:"retention_window" validate:"gt=0"`

    WalletPoolSize        int  `yaml:"wallet_pool_size" validate:"min=3"`
    SimulateDeterministic bool `yaml:"simulate_deterministic"`

    Store    string `yaml:"store" validate:"oneof=neo4j memory"`
    Neo4j    Neo4j  `yaml:"neo4j"`
    RedisURL string `yaml:"redis_url"`

    MetricsPort   int           `yaml:"metrics_port" validate:"min=0,max=65535"`
    ShutdownGrace time.Duration `yaml:"shutdown_grace" validate:"gt=0"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
    return &Config{
        DataDir:          "data/raw",
        LedgerPath:       "data/pushed_files.txt",
        SourceURL:        "https://api.coingecko.com/api/v3/coins/bitcoin",
        HTTPTimeout:      10 * time.Second,
        FetchInterval:    60 * time.Second,
        PushInterval:     60 * time.Second,
        PushInitialDelay: 10 * time.Second,
        SimulateInterval: 300 * time.Second,
        RetentionWindow:  24 * time.Hour,
        WalletPoolSize:   50,
        Store:            StoreNeo4j,
        Neo4j:            Neo4j{User: "neo4j"},
        MetricsPort:      8082,
        ShutdownGrace:    10 * time.Second,
    }
}

// Load reads the process arguments (via a local FlagSet, ignoring -test.*
// flags), an optional .env file, an optional YAML file and the environment.
func Load() (*Config, error) {
    var appArgs []string
    for _, arg := range os.Args[1:] {
        if strings.HasPrefix(arg, "-test.") {
            continue
        }
        appArgs = append(appArgs, arg)
    }
    return LoadArgs(appArgs)
}

// LoadArgs is Load with explicit arguments. Precedence, lowest first:
// defaults, YAML file, environment (including .env), flags.
func LoadArgs(args []string) (*Config, error) {
    fs := flag.NewFlagSet("config", flag.ContinueOnError)
    var configFile, store, redisURL, dataDir string
    var metricsPort int
    fs.StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "YAML config file")
    fs.StringVar(&store, "store", "", "Graph store backend (neo4j|memory)")
    fs.StringVar(&redisURL, "redis", "", "Redis connection URL")
    fs.StringVar(&dataDir, "data-dir", "", "Durable record directory")
    fs.IntVar(&metricsPort, "metrics-port", 0, "Metrics server port")
    if err := fs.Parse(args); err != nil {
        return nil, err
    }

    if err := loadDotEnv(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
        return nil, err
    }

    cfg := Defaults()
    if configFile != "" {
        if err := cfg.loadFile(configFile); err != nil {
            return nil, err
        }
    }
    if err := cfg.applyEnv(); err != nil {
        return nil, err
    }

    // only flags given on the command line win over the environment
    fs.Visit(func(f *flag.Flag) {
        switch f.Name {
        case "store":
            cfg.Store = store
        case "redis":
            cfg.RedisURL = redisURL
        case "data-dir":
            cfg.DataDir = dataDir
        case "metrics-port":
            cfg.MetricsPort = metricsPort
        }
    })

    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// Validate checks field constraints and the neo4j credentials when that
// backend is selected.
func (c *Config) Validate() error {
    if errs := validation.ValidateStruct(c); len(errs) > 0 {
        return fmt.Errorf("invalid config: %w", errs)
    }
    if c.Store == StoreNeo4j {
        var missing []string
        if c.Neo4j.URI == "" {
            missing = append(missing, "NEO4J_URI")
        }
        if c.Neo4j.User == "" {
            missing = append(missing, "NEO4J_USER")
        }
        if c.Neo4j.Password == "" {
            missing = append(missing, "NEO4J_PASSWORD")
        }
        if len(missing) > 0 {
            return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
        }
    }
    return nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding variables already set.
// A missing file is fine.
func loadDotEnv(path string) error {
    err := godotenv.Load(path)
    if err == nil || errors.Is(err, os.ErrNotExist) {
        return nil
    }
    return fmt.Errorf("load %s: %w", path, err)
}

func (c *Config) loadFile(path string) error {
    data, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("read config file: %w", err)
    }
    if err := yaml.Unmarshal(data, c); err != nil {
        return fmt.Errorf("parse config file %s: %w", path, err)
    }
    return nil
}

func (c *Config) applyEnv() error {
    c.DataDir = getEnvOrDefault("DATA_DIR", c.DataDir)
    c.LedgerPath = getEnvOrDefault("LEDGER_PATH", c.LedgerPath)
    c.SourceURL = getEnvOrDefault("SOURCE_URL", c.SourceURL)
    c.SourceAPIKey = getEnvOrDefault("SOURCE_API_KEY", c.SourceAPIKey)
    c.Store = getEnvOrDefault("STORE", c.Store)
    c.Neo4j.URI = getEnvOrDefault("NEO4J_URI", c.Neo4j.URI)
    c.Neo4j.User = getEnvOrDefault("NEO4J_USER", c.Neo4j.User)
    c.Neo4j.Password = getEnvOrDefault("NEO4J_PASSWORD", c.Neo4j.Password)
    c.Neo4j.Database = getEnvOrDefault("NEO4J_DATABASE", c.Neo4j.Database)
    c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)

    durations := []struct {
        key string
        dst *time.Duration
    }{
        {"HTTP_TIMEOUT", &c.HTTPTimeout},
        {"FETCH_INTERVAL", &c.FetchInterval},
        {"PUSH_INTERVAL", &c.PushInterval},
        {"PUSH_INITIAL_DELAY", &c.PushInitialDelay},
        {"SIMULATE_INTERVAL", &c.SimulateInterval},
        {"SWEEP_INTERVAL", &c.SweepInterval},
        {"RETENTION_WINDOW", &c.RetentionWindow},
        {"SHUTDOWN_GRACE", &c.ShutdownGrace},
    }
    for _, d := range durations {
        v, err := getDurationEnv(d.key, *d.dst)
        if err != nil {
            return err
        }
        *d.dst = v
    }

    if v := os.Getenv("WALLET_POOL_SIZE"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
            return fmt.Errorf("invalid WALLET_POOL_SIZE env var: %v", err)
        }
        c.WalletPoolSize = n
    }
    if v := os.Getenv("METRICS_PORT"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
            return fmt.Errorf("invalid METRICS_PORT env var: %v", err)
        }
        c.MetricsPort = n
    }
    if v := os.Getenv("SIMULATE_DETERMINISTIC"); v != "" {
        b, err := strconv.ParseBool(v)
        if err != nil {
            return fmt.Errorf("invalid SIMULATE_DETERMINISTIC env var: %v", err)
        }
        c.SimulateDeterministic = b
    }
    return nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
    if value := os.Getenv(key); value != "" {
        return value
    }
    return defaultValue
}

// getDurationEnv parses key as a duration; bare integers are seconds.
func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
    value := os.Getenv(key)
    if value == "" {
        return defaultValue, nil
    }
    if secs, err := strconv.Atoi(value); err == nil {
        return time.Duration(secs) * time.Second, nil
    }
    d, err := time.ParseDuration(value)
    if err != nil {
        return 0, fmt.Errorf("invalid %s env var: %v", key, err)
    }
    return d, nil
}
