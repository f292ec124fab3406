package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

const (
	ModeHTTP    = "http"
	ModeConsole = "console"
	ModeMCP     = "mcp"
)

type Config struct {
	// Which frontend to run
	Mode      string    `yaml:"mode" example:"http" validate:"oneof=http console mcp"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	Responder Responder `yaml:"responder"`
	Session   Session   `yaml:"session"`
}

type Log struct {
	// Minimal level written to the console
	Level string `yaml:"level" example:"debug" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type HTTP struct {
	// Listen address of the HTTP API
	Listen string `yaml:"listen" example:":8080" validate:"required"`
}

type Responder struct {
	// Path to the reply templates file (YAML or JSON)
	TemplatesFile string `yaml:"templates_file" example:"templates.yaml" validate:"required"`
	// Known emotion labels, empty list accepts any label
	Emotions []string `yaml:"emotions" example:"[angry, sad, neutral, happy, excited]" validate:"dive,required"`
	// Known intent labels, empty list accepts any label
	Intents []string `yaml:"intents" example:"[greeting, question, complaint]" validate:"dive,required"`
	// Ordinal valence of each emotion, missing emotions are 0
	Valence map[string]int `yaml:"valence" example:"{angry: -2, neutral: 0, happy: 1}"`
}

type Session struct {
	// Capacity of the anti-repetition window
	ReplyWindow int `yaml:"reply_window" example:"3" validate:"gte=1"`
	// Sessions idle for longer than this are evicted
	IdleTTL time.Duration `yaml:"idle_ttl" example:"30m" validate:"gt=0"`
	// How often idle sessions are evicted
	EvictInterval time.Duration `yaml:"evict_interval" example:"1m" validate:"gt=0"`
	// Upper bound of live sessions, least recently used are dropped first
	MaxSessions int `yaml:"max_sessions" example:"10000" validate:"gte=1"`
	// Base seed of per-session random generators, 0 picks a random seed per session
	Seed uint64 `yaml:"seed" example:"0"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.Mode == "" {
		result.Mode = ModeHTTP
	}
	if result.Log.Level == "" {
		result.Log.Level = "debug"
	}
	if result.HTTP.Listen == "" {
		result.HTTP.Listen = ":8080"
	}
	if result.Responder.TemplatesFile == "" {
		result.Responder.TemplatesFile = "templates.yaml"
	}
	if result.Session.ReplyWindow == 0 {
		result.Session.ReplyWindow = 3
	}
	if result.Session.IdleTTL == 0 {
		result.Session.IdleTTL = 30 * time.Minute
	}
	if result.Session.EvictInterval == 0 {
		result.Session.EvictInterval = time.Minute
	}
	if result.Session.MaxSessions == 0 {
		result.Session.MaxSessions = 10000
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
