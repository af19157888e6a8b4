package companion

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────
// Configuration — environment driven, .env aware
// ──────────────────────────────────────────────

// Config aggregates every tunable for one companion deployment.
type Config struct {
	PersonaName  string
	SystemPrompt string
	HistoryCap   int
	PromptBudget int

	Gates     GateConfig
	Fusion    FusionConfig
	Delivery  DeliveryConfig
	Proactive ProactiveConfig
	Committer CommitterConfig
	API       APIConfig

	RedisAddr     string // empty means in-memory store
	RedisPassword string
	RedisDB       int

	QdrantURL        string // empty disables vector memory
	QdrantCollection string
}

// LoadConfigFromEnv builds a Config from environment variables, loading a
// .env file first when present. Every knob has a working default so an empty
// environment yields a runnable in-memory deployment.
func LoadConfigFromEnv() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[Config] loaded .env")
	}

	cfg := Config{
		PersonaName:  getEnv("COMPANION_PERSONA_NAME", ""),
		SystemPrompt: getEnv("COMPANION_SYSTEM_PROMPT", ""),
		HistoryCap:   envInt("COMPANION_HISTORY_CAP", DefaultHistoryCap),
		PromptBudget: envInt("COMPANION_PROMPT_BUDGET", DefaultPromptBudget),

		Gates:     DefaultGateConfig(),
		Fusion:    DefaultFusionConfig(),
		Delivery:  DefaultDeliveryConfig(),
		Proactive: DefaultProactiveConfig(),
		Committer: DefaultCommitterConfig(),
		API:       DefaultAPIConfig(),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		QdrantURL:        getEnv("QDRANT_URL", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "companion_memories"),
	}

	cfg.Gates.QuietStartHour = envInt("COMPANION_QUIET_START", cfg.Gates.QuietStartHour)
	cfg.Gates.QuietEndHour = envInt("COMPANION_QUIET_END", cfg.Gates.QuietEndHour)
	cfg.Gates.QuietSuppressProb = envFloat("COMPANION_QUIET_SUPPRESS_PROB", cfg.Gates.QuietSuppressProb)
	cfg.Gates.BusyProb = envFloat("COMPANION_BUSY_PROB", cfg.Gates.BusyProb)

	cfg.Fusion.TopK = envInt("COMPANION_RECALL_TOPK", cfg.Fusion.TopK)
	cfg.Fusion.MinScore = float32(envFloat("COMPANION_RECALL_MIN_SCORE", float64(cfg.Fusion.MinScore)))

	cfg.Proactive.IdleThreshold = envDuration("COMPANION_IDLE_THRESHOLD", cfg.Proactive.IdleThreshold)
	cfg.Proactive.DailyCap = envInt("COMPANION_PROACTIVE_DAILY_CAP", cfg.Proactive.DailyCap)
	cfg.Proactive.Cooldown = envDuration("COMPANION_PROACTIVE_COOLDOWN", cfg.Proactive.Cooldown)

	cfg.API.Addr = getEnv("COMPANION_API_ADDR", cfg.API.Addr)
	cfg.API.APIKey = getEnv("COMPANION_API_KEY", "")

	return cfg
}

// --- internal helpers ---

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}

func envInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[Config] bad int %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[Config] bad float %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[Config] bad duration %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
