package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/headsup-poker-backend/internal/engine"
)

var ErrInvalidRules = errors.New("invalid rules")

// Game holds the tunables a rules file may override.
type Game struct {
	engine.Rules     `yaml:",inline"`
	ShowdownTimeout  time.Duration `yaml:"showdown_timeout"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout"`
	LobbyCapacity    int           `yaml:"lobby_capacity"`
	MaxNameLength    int           `yaml:"max_name_length"`
}

func DefaultGame() Game {
	return Game{
		Rules:            engine.DefaultRules(),
		ShowdownTimeout:  5 * time.Second,
		ChallengeTimeout: 30 * time.Second,
		LobbyCapacity:    10,
		MaxNameLength:    20,
	}
}

func (g Game) Validate() error {
	switch {
	case g.SmallBlind <= 0 || g.BigBlind <= 0:
		return fmt.Errorf("%w: blinds must be positive", ErrInvalidRules)
	case g.SmallBlind > g.BigBlind:
		return fmt.Errorf("%w: small blind above big blind", ErrInvalidRules)
	case g.StartingStack < g.BigBlind:
		return fmt.Errorf("%w: starting stack below big blind", ErrInvalidRules)
	case g.ShowdownTimeout <= 0 || g.ChallengeTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidRules)
	case g.LobbyCapacity < 2:
		return fmt.Errorf("%w: lobby needs room for two players", ErrInvalidRules)
	case g.MaxNameLength <= 0:
		return fmt.Errorf("%w: max name length must be positive", ErrInvalidRules)
	}
	return nil
}

type Config struct {
	Port              string
	LogFormat         string
	LogLevel          string
	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string
	AllowedOrigins    []string
	RulesFile         string
	Game              Game
}

func (c Config) Addr() string { return ":" + c.Port }

// Load reads .env (if present), the environment and the optional rules file.
func Load(log *zap.Logger) (Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env loaded", zap.Error(err))
	}

	c := Config{
		Port:              env("PORT", "8080"),
		LogFormat:         env("LOG_FORMAT", "json"),
		LogLevel:          env("LOG_LEVEL", "info"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: env("NATS_SUBJECT_PREFIX", "poker.events"),
		AllowedOrigins:    splitList(env("ALLOWED_ORIGINS", "*")),
		RulesFile:         os.Getenv("RULES_FILE"),
		Game:              DefaultGame(),
	}
	if c.RulesFile != "" {
		g, err := LoadRules(c.RulesFile)
		if err != nil {
			return Config{}, err
		}
		c.Game = g
	}
	if err := c.Game.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadRules overlays the YAML file at path onto the defaults.
func LoadRules(path string) (Game, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Game{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Game, error) {
	g := DefaultGame()
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return Game{}, fmt.Errorf("parse rules: %w", err)
	}
	return g, g.Validate()
}

// Logger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
