package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gamesync/pkg/logging"
)

const Production = "production"

var DefaultEnvFiles = []string{".env", ".env.local"}

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load(DefaultEnvFiles)
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist. Files are looked up in the working
// directory first and then in the nearest parent directory holding go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	root := goModRoot()
	for _, file := range envFiles {
		if fileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if root != "" && !filepath.IsAbs(file) {
			candidate := filepath.Join(root, file)
			if fileExists(candidate) {
				existingFiles = append(existingFiles, candidate)
			}
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func goModRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type ContentfulOptions struct {
	BaseURL         string        `env:"CONTENTFUL_BASE_URL" envDefault:"https://api.contentful.com" validate:"required,url"`
	SpaceID         string        `env:"CONTENTFUL_SPACE_ID"`
	EnvironmentID   string        `env:"CONTENTFUL_ENVIRONMENT" envDefault:"master" validate:"required"`
	ManagementToken string        `env:"CONTENTFUL_MANAGEMENT_TOKEN"`
	ContentType     string        `env:"CONTENTFUL_CONTENT_TYPE" envDefault:"siteGame" validate:"required"`
	Locale          string        `env:"CONTENTFUL_LOCALE" envDefault:"en-GB" validate:"required"`
	PageSize        int           `env:"CONTENTFUL_PAGE_SIZE" envDefault:"500" validate:"min=1,max=1000"`
	MaxRetries      int           `env:"CONTENTFUL_MAX_RETRIES" envDefault:"3" validate:"min=0,max=10"`
	RetryBaseDelay  time.Duration `env:"CONTENTFUL_RETRY_BASE_DELAY" envDefault:"500ms"`
	RequestTimeout  time.Duration `env:"CONTENTFUL_REQUEST_TIMEOUT" envDefault:"30s"`
}

type SyncOptions struct {
	ChunkSize     int           `env:"BULK_CHUNK_SIZE" envDefault:"200" validate:"min=1,max=200"`
	PollInterval  time.Duration `env:"BULK_POLL_INTERVAL" envDefault:"1s"`
	UpdatePause   time.Duration `env:"UPDATE_PAUSE" envDefault:"200ms"`
	BetCurrency   string        `env:"BET_CURRENCY" envDefault:"GBP" validate:"len=3"`
	CatalogPath   string        `env:"CATALOG_PATH"`
	KeyColumn     string        `env:"SHEET_KEY_COLUMN" envDefault:"Game Code" validate:"required"`
	VentureColumn string        `env:"SHEET_VENTURE_COLUMN" envDefault:"Venture"`
}

type RateLimitOptions struct {
	Enabled           bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerSecond int64  `env:"RATE_LIMIT_RPS" envDefault:"7"`
	Storage           string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL          string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit RequestsPerSecond must be non-negative, got %d", r.RequestsPerSecond)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type LogOptions struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Path  string `env:"LOG_PATH"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"gamesync"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"PROMETHEUS_METRICS_ADDR" envDefault:"localhost:9464"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type Configuration struct {
	Contentful    ContentfulOptions
	Sync          SyncOptions
	RateLimit     RateLimitOptions
	Log           LogOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	// Sent with every management API request; a fresh uuid per request.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Use returns the process-wide configuration loaded from the default env files.
// Library code takes a *Configuration explicitly; only cmd/ calls Use.
func Use() *Configuration {
	return singleton()
}

// Load parses the environment (after applying envFiles) into a new Configuration.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Log.Path != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Log.Path)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints plus the cross-field rules.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if c.Sync.PollInterval < 0 || c.Sync.UpdatePause < 0 {
		return fmt.Errorf("BULK_POLL_INTERVAL and UPDATE_PAUSE must be non-negative")
	}
	c.Sync.BetCurrency = strings.ToUpper(c.Sync.BetCurrency)
	return nil
}

// RequireCredentials reports whether the remote API can be reached with this configuration.
func (c *Configuration) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Contentful.SpaceID) == "" {
		missing = append(missing, "CONTENTFUL_SPACE_ID")
	}
	if strings.TrimSpace(c.Contentful.ManagementToken) == "" {
		missing = append(missing, "CONTENTFUL_MANAGEMENT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
