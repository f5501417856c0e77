package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Port      int
	LogLevel  string
	APIToken  string
	WSOrigins []string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	NatsURL   string
	NatsToken string

	APIKeys         []string
	APIBaseURL      string
	TranscribeModel string
	ExtractModel    string

	ChunkBytes            int64
	TranscribeConcurrency int
	HistorySize           int
	RecordingsDir         string
	Timezone              string
	EventMinutes          int

	FFMPEGCommand    string
	AudioInputFormat string
	AudioInputDevice string
}

func Load() Config {
	return Config{
		Port:      envInt("SCRIBE_PORT", 8760),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		APIToken:  envStr("SCRIBE_API_TOKEN", ""),
		WSOrigins: envList("SCRIBE_WS_ORIGINS"),

		StoreDriver: envStr("STORE_DRIVER", "sqlite"),
		DatabaseURL: envStr("DATABASE_URL", ""),
		SQLitePath:  expandHome(envStr("SQLITE_PATH", "~/.scribe/scribe.sqlite")),

		NatsURL:   envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken: envStr("NATS_TOKEN", ""),

		APIKeys:         envList("SCRIBE_API_KEYS"),
		APIBaseURL:      envStr("SCRIBE_API_BASE", "https://api.groq.com/openai/v1"),
		TranscribeModel: envStr("SCRIBE_TRANSCRIBE_MODEL", "whisper-large-v3"),
		ExtractModel:    envStr("SCRIBE_EXTRACT_MODEL", "llama-3.3-70b-versatile"),

		ChunkBytes:            int64(envInt("SCRIBE_CHUNK_BYTES", 20*1024*1024)),
		TranscribeConcurrency: envInt("SCRIBE_TRANSCRIBE_CONCURRENCY", 3),
		HistorySize:           envInt("SCRIBE_HISTORY_SIZE", 50),
		RecordingsDir:         expandHome(envStr("SCRIBE_RECORDINGS_DIR", "~/.scribe/recordings")),
		Timezone:              envStr("SCRIBE_TIMEZONE", "Local"),
		EventMinutes:          envInt("SCRIBE_EVENT_MINUTES", 60),

		FFMPEGCommand:    envStr("SCRIBE_FFMPEG_COMMAND", "ffmpeg"),
		AudioInputFormat: envStr("SCRIBE_AUDIO_INPUT_FORMAT", "pulse"),
		AudioInputDevice: envStr("SCRIBE_AUDIO_INPUT_DEVICE", "default"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
