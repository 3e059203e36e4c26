package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dbpkg "github.com/yungbote/riskreview-backend/internal/data/db"
	"github.com/yungbote/riskreview-backend/internal/platform/envutil"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type Config struct {
	Port         string
	LogMode      string
	Environment  string
	Version      string
	JWTSecretKey string
	CORSOrigins  []string
	GCSEnabled   bool

	DB       dbpkg.Config
	Worker   WorkerConfig
	Pipeline PipelineConfig
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// PipelineConfig tunes the review pipeline. It can come from the YAML file
// named by REVIEW_CONFIG_FILE; environment variables override it.
type PipelineConfig struct {
	JobTimeout              time.Duration `yaml:"job_timeout"`
	ChunkMaxRunes           int           `yaml:"chunk_max_runes"`
	ChunkOverlap            int           `yaml:"chunk_overlap"`
	ChunkLookBack           int           `yaml:"chunk_lookback"`
	ChunkAttempts           int           `yaml:"chunk_attempts"`
	RetryBase               time.Duration `yaml:"retry_base"`
	ChunkConcurrency        int           `yaml:"chunk_concurrency"`
	CasesPerChunk           int           `yaml:"cases_per_chunk"`
	RegulationsPerChunk     int           `yaml:"regulations_per_chunk"`
	CaseMinSimilarity       float64       `yaml:"case_min_similarity"`
	RegulationMinSimilarity float64       `yaml:"regulation_min_similarity"`
	SnippetRunes            int           `yaml:"context_snippet_runes"`
	MaxDocumentBytes        int64         `yaml:"max_document_bytes"`
	SubmissionsPerHour      int           `yaml:"submissions_per_hour"`
	CorpusCacheTTL          time.Duration `yaml:"corpus_cache_ttl"`

	GuidancePerDocument   int     `yaml:"guidance_per_document"`
	GuidanceMinSimilarity float64 `yaml:"guidance_min_similarity"`
	ClassifyEnabled       bool    `yaml:"classify_enabled"`
	DebateEnabled         bool    `yaml:"debate_enabled"`
	DismissConfidence     int     `yaml:"dismiss_confidence"`
	RadarEnabled          bool    `yaml:"radar_enabled"`
}

func defaultConfig() Config {
	return Config{
		Port:    "8080",
		LogMode: "development",
		Worker: WorkerConfig{
			Concurrency:  4,
			PollInterval: time.Second,
			StaleAfter:   2 * time.Minute,
			MaxAttempts:  3,
		},
		Pipeline: PipelineConfig{
			JobTimeout:              15 * time.Minute,
			ChunkMaxRunes:           2000,
			ChunkOverlap:            200,
			ChunkLookBack:           300,
			ChunkAttempts:           3,
			RetryBase:               2 * time.Second,
			ChunkConcurrency:        1,
			CasesPerChunk:           2,
			RegulationsPerChunk:     1,
			CaseMinSimilarity:       0.65,
			RegulationMinSimilarity: 0.60,
			SnippetRunes:            600,
			MaxDocumentBytes:        10 << 20,
			SubmissionsPerHour:      10,
			CorpusCacheTTL:          5 * time.Minute,
			GuidancePerDocument:     3,
			GuidanceMinSimilarity:   0.60,
			ClassifyEnabled:         true,
			DebateEnabled:           true,
			DismissConfidence:       85,
			RadarEnabled:            true,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file and the environment,
// in that order.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("REVIEW_CONFIG_FILE", ""); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
		if log != nil {
			log.Info("Loaded pipeline config file", "path", path)
		}
	}
	applyEnv(&cfg)
	if cfg.JWTSecretKey == "" && log != nil {
		log.Warn("JWT_SECRET_KEY is not set; every API request will be rejected")
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay struct {
		Worker   *WorkerConfig
		Pipeline *PipelineConfig
	}
	// Decode into copies of the current values so absent keys keep defaults.
	w, p := cfg.Worker, cfg.Pipeline
	overlay.Worker, overlay.Pipeline = &w, &p
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.Worker, cfg.Pipeline = w, p
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.Version = envutil.String("APP_VERSION", cfg.Version)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.GCSEnabled = envutil.Bool("GCS_ENABLED", cfg.GCSEnabled)
	if raw := envutil.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		cfg.CORSOrigins = strings.Split(raw, ",")
	}

	cfg.DB = dbpkg.Config{
		Driver:     envutil.String("DB_DRIVER", dbpkg.DriverPostgres),
		DSN:        envutil.String("DATABASE_URL", ""),
		Host:       envutil.String("POSTGRES_HOST", "localhost"),
		Port:       envutil.String("POSTGRES_PORT", "5432"),
		User:       envutil.String("POSTGRES_USER", "postgres"),
		Password:   envutil.String("POSTGRES_PASSWORD", ""),
		Name:       envutil.String("POSTGRES_NAME", "riskreview"),
		SQLitePath: envutil.String("SQLITE_PATH", "riskreview.db"),
		MaxOpen:    envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20),
	}

	w := &cfg.Worker
	w.Concurrency = envutil.Int("WORKER_CONCURRENCY", w.Concurrency)
	w.PollInterval = envutil.Duration("WORKER_POLL_INTERVAL", w.PollInterval)
	w.StaleAfter = envutil.Duration("WORKER_STALE_AFTER", w.StaleAfter)
	w.MaxAttempts = envutil.Int("WORKER_MAX_ATTEMPTS", w.MaxAttempts)

	p := &cfg.Pipeline
	p.JobTimeout = envutil.Duration("REVIEW_JOB_TIMEOUT", p.JobTimeout)
	p.ChunkMaxRunes = envutil.Int("REVIEW_CHUNK_MAX_RUNES", p.ChunkMaxRunes)
	p.ChunkOverlap = envutil.Int("REVIEW_CHUNK_OVERLAP", p.ChunkOverlap)
	p.ChunkLookBack = envutil.Int("REVIEW_CHUNK_LOOKBACK", p.ChunkLookBack)
	p.ChunkAttempts = envutil.Int("REVIEW_CHUNK_ATTEMPTS", p.ChunkAttempts)
	p.RetryBase = envutil.Duration("REVIEW_RETRY_BASE", p.RetryBase)
	p.ChunkConcurrency = envutil.Int("REVIEW_CHUNK_CONCURRENCY", p.ChunkConcurrency)
	p.CasesPerChunk = envutil.Int("REVIEW_CASES_PER_CHUNK", p.CasesPerChunk)
	p.RegulationsPerChunk = envutil.Int("REVIEW_REGULATIONS_PER_CHUNK", p.RegulationsPerChunk)
	p.CaseMinSimilarity = envutil.Float("REVIEW_CASE_MIN_SIMILARITY", p.CaseMinSimilarity)
	p.RegulationMinSimilarity = envutil.Float("REVIEW_REGULATION_MIN_SIMILARITY", p.RegulationMinSimilarity)
	p.SnippetRunes = envutil.Int("REVIEW_CONTEXT_SNIPPET_RUNES", p.SnippetRunes)
	p.MaxDocumentBytes = envutil.Int64("REVIEW_MAX_DOCUMENT_BYTES", p.MaxDocumentBytes)
	p.SubmissionsPerHour = envutil.Int("REVIEW_SUBMISSIONS_PER_HOUR", p.SubmissionsPerHour)
	p.GuidancePerDocument = envutil.Int("REVIEW_GUIDANCE_PER_DOCUMENT", p.GuidancePerDocument)
	p.GuidanceMinSimilarity = envutil.Float("REVIEW_GUIDANCE_MIN_SIMILARITY", p.GuidanceMinSimilarity)
	p.ClassifyEnabled = envutil.Bool("REVIEW_CLASSIFY_ENABLED", p.ClassifyEnabled)
	p.DebateEnabled = envutil.Bool("REVIEW_DEBATE_ENABLED", p.DebateEnabled)
	p.DismissConfidence = envutil.Int("REVIEW_DISMISS_CONFIDENCE", p.DismissConfidence)
	p.RadarEnabled = envutil.Bool("REVIEW_RADAR_ENABLED", p.RadarEnabled)
	p.CorpusCacheTTL = envutil.Duration("CORPUS_CACHE_TTL", p.CorpusCacheTTL)
}
