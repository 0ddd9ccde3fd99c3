package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultChatModel       = "gpt-4o-mini"
	DefaultTranscribeModel = "whisper-1"
)

type Config struct {
	Port string

	InputDir  string
	OutputDir string

	FFmpegPath  string
	FFprobePath string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TranscribeModel string

	TranscribeMaxRetries uint64
	TranscribeTimeout    time.Duration
	MaxUploadBytes       int64

	MockTranscribe bool
	MockLLM        bool
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	_ = godotenv.Load() // loads .env

	return Config{
		Port:                 envOr("PORT", "8080"),
		InputDir:             envOr("INPUT_DIR", "public/input"),
		OutputDir:            envOr("OUTPUT_DIR", "public/output"),
		FFmpegPath:           envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          envOr("FFPROBE_PATH", "ffprobe"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		TranscribeModel:      envOr("OPENAI_TRANSCRIBE_MODEL", DefaultTranscribeModel),
		TranscribeMaxRetries: uint64(envInt("TRANSCRIBE_MAX_RETRIES", 3)),
		TranscribeTimeout:    time.Duration(envInt("TRANSCRIBE_TIMEOUT_SEC", 120)) * time.Second,
		MaxUploadBytes:       int64(envInt("MAX_UPLOAD_MB", 512)) << 20,
		MockTranscribe:       envBool("USE_MOCK_TRANSCRIBE"),
		MockLLM:              envBool("USE_MOCK_LLM"),
	}
}

// ChatModel is resolved on every request so the override can change without a restart.
func ChatModel() string {
	return envOr("OPENAI_MODEL", DefaultChatModel)
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envBool(k string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(k)), "true")
}
