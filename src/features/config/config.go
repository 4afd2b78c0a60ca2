package config

// Config holds the application configuration.
type Config struct {
	Logger    Logger    `yaml:"logger"`
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Queue     Queue     `yaml:"queue"`
	Worker    Worker    `yaml:"worker"`
	Lyrics    Lyrics    `yaml:"lyrics"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Retry     Retry     `yaml:"retry"`
	Janitor   Janitor   `yaml:"janitor"`
	Telegram  Telegram  `yaml:"telegram"`
}

// Logger holds the configuration for the app logging.
type Logger struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server holds the configuration for the Fiber server.
type Server struct {
	PrintRoutes bool   `yaml:"show_routes"`
	Port        uint32 `yaml:"port"`
}

// Database holds the configuration for the sqlite library store.
type Database struct {
	Path string `yaml:"path" validate:"required"`
}

// Redis holds the connection settings for the queue backend.
type Redis struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Queue holds the priority-queue settings.
type Queue struct {
	// Namespace prefixes the queue, job-record, and active-slot keys.
	// Progress mirror and lyrics cache keys carry no namespace.
	Namespace    string `yaml:"namespace" validate:"required"`
	ActiveTTL    int    `yaml:"active_ttl" validate:"gt=0"`    // seconds
	CompletedTTL int    `yaml:"completed_ttl" validate:"gt=0"` // seconds
}

// Worker holds the worker-loop settings.
type Worker struct {
	PollInterval float64 `yaml:"poll_interval" validate:"gte=0.1,lte=5"` // seconds
	StopTimeout  float64 `yaml:"stop_timeout" validate:"gt=0"`           // seconds
}

// Lyrics holds the lyrics fetcher settings.
type Lyrics struct {
	Providers        map[string]Provider `yaml:"providers"`
	CacheTTL         int                 `yaml:"cache_ttl" validate:"gt=0"`          // seconds
	NegativeCacheTTL int                 `yaml:"negative_cache_ttl" validate:"gt=0"` // seconds
	CacheMaxAgeDays  int                 `yaml:"cache_max_age_days" validate:"gt=0"`
	HTTPTimeout      int                 `yaml:"http_timeout" validate:"gt=0"` // seconds
	GeniusTimeout    int                 `yaml:"genius_timeout" validate:"gt=0"`
	GeniusRetries    int                 `yaml:"genius_retries"`
}

// Provider holds configuration for an individual lyrics provider.
type Provider struct {
	Enabled bool    `yaml:"enabled"`
	Token   *string `yaml:"token,omitempty"`
}

// RateLimit holds the limiter settings guarding the Genius provider.
type RateLimit struct {
	WindowSize       int     `yaml:"window_size" validate:"gt=0"` // seconds
	MaxRequests      int     `yaml:"max_requests" validate:"gt=0"`
	BucketCapacity   int     `yaml:"bucket_capacity" validate:"gt=0"`
	BucketRefillRate float64 `yaml:"bucket_refill_rate" validate:"gt=0"` // tokens/second
}

// Retry holds the exponential-backoff settings for provider HTTP calls.
type Retry struct {
	MaxRetries   int     `yaml:"max_retries" validate:"gt=0"`
	BaseDelay    float64 `yaml:"base_delay" validate:"gt=0"` // seconds
	MaxDelay     float64 `yaml:"max_delay" validate:"gt=0"`  // seconds
	JitterFactor float64 `yaml:"jitter_factor" validate:"gte=0"`
}

// Janitor holds the periodic cleanup settings.
type Janitor struct {
	Interval   int `yaml:"interval" validate:"gt=0"`     // seconds
	StaleJobsH int `yaml:"stale_jobs_h" validate:"gt=0"` // hours
}

// Telegram holds the optional job-notification bot settings.
type Telegram struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}
