package config

import (
	_ "embed"
	"os"
	"strconv"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Database    DatabaseConfig
	Extractor   ExtractorConfig
	Web         WebConfig
	Email       EmailConfig
	Camera      CameraConfig
	Recognition RecognitionConfig
	HNSW        HNSWConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL string // face detector/embedding server, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 512
}

type WebConfig struct {
	Host          string
	Port          int
	SessionSecret string
	AdminUser     string
	AdminPass     string
}

type EmailConfig struct {
	Enabled   bool
	SMTPHost  string
	SMTPPort  int
	Sender    string
	Password  string
	Recipient string
	Cooldown  int // seconds between alerts per camera
}

type CameraConfig struct {
	ID string // logical camera identifier attached to detection logs
}

// RecognitionConfig holds the matching thresholds and adaptive update
// tuning. Defaults come from the embedded thresholds.yaml; every value can
// be overridden through the environment.
type RecognitionConfig struct {
	Dim                  int
	MatchThreshold       float64
	SaveThreshold        float64 // minimum best similarity to keep an unknown
	ReviewThreshold      float64 // MatchThreshold - review_margin
	MinDetScore          float64 // detector confidence floor per face
	AdaptiveAlpha        float64
	AdaptiveUpdate       bool
	UpdateEvery          int
	Window               int
	StaleAfter           int
	ExactSearchThreshold int
	IndexPath            string // optional persisted index location
}

type HNSWConfig struct {
	MaxNeighbors int
	EfSearch     int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean with a default.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func Load() *Config {
	def := loadDefaults()

	match := envFloat("MATCH_THRESHOLD", def.Recognition.MatchThreshold)
	review := match - def.Recognition.ReviewMargin
	if review < 0 {
		review = 0
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL: envString("EXTRACTOR_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Web: WebConfig{
			Host:          envString("WEB_HOST", "0.0.0.0"),
			Port:          envInt("WEB_PORT", 8080),
			SessionSecret: os.Getenv("SESSION_SECRET"),
			AdminUser:     envString("ADMIN_USER", "admin"),
			AdminPass:     os.Getenv("ADMIN_PASS"),
		},
		Email: EmailConfig{
			Enabled:   envBool("ENABLE_EMAIL_ALERTS", false),
			SMTPHost:  envString("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:  envInt("SMTP_PORT", 587),
			Sender:    os.Getenv("EMAIL_SENDER"),
			Password:  os.Getenv("EMAIL_PASSWORD"),
			Recipient: os.Getenv("EMAIL_RECIPIENT"),
			Cooldown:  envInt("EMAIL_COOLDOWN", 300),
		},
		Camera: CameraConfig{
			ID: envString("CAMERA_ID", "cam_01"),
		},
		Recognition: RecognitionConfig{
			Dim:                  envInt("EMBEDDING_DIM", 512),
			MatchThreshold:       match,
			SaveThreshold:        envFloat("SAVE_THRESHOLD", def.Recognition.SaveThreshold),
			MinDetScore:          envFloat("DETECTION_CONFIDENCE", def.Recognition.DetScoreMin),
			ReviewThreshold:      review,
			AdaptiveAlpha:        envFloat("ADAPTIVE_ALPHA", def.Recognition.AdaptiveAlpha),
			AdaptiveUpdate:       envBool("ENABLE_ADAPTIVE_UPDATE", true),
			UpdateEvery:          envInt("ADAPTIVE_UPDATE_FREQUENCY", def.Recognition.UpdateEvery),
			Window:               envInt("MULTIFRAME_COUNT", def.Recognition.Window),
			StaleAfter:           envInt("TRACKER_STALE_AFTER", def.Recognition.StaleAfter),
			ExactSearchThreshold: envInt("EXACT_SEARCH_THRESHOLD", def.Recognition.ExactSearchThreshold),
			IndexPath:            os.Getenv("INDEX_PATH"),
		},
		HNSW: HNSWConfig{
			MaxNeighbors: def.HNSW.MaxNeighbors,
			EfSearch:     def.HNSW.EfSearch,
		},
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
