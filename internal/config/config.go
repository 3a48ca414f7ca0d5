package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8000/api"`
	StatePath string `envconfig:"STATE_PATH" default:""`
	LogPath   string `envconfig:"LOG_PATH" default:""`

	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// ScheduleKey selects how schedules are addressed by the registry:
	// "name" or "id". One deployment uses one kind.
	ScheduleKey string `envconfig:"SCHEDULE_KEY" default:"name"`

	// Terminal geometry used when stdout is not a terminal
	DefaultCols int `envconfig:"DEFAULT_COLS" default:"80"`
	DefaultRows int `envconfig:"DEFAULT_ROWS" default:"24"`
}

var Cfg Settings

func Load() {
	if err := LoadE(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// LoadE processes COHUB_* environment variables into Cfg and fills in
// path defaults that depend on the user's home directory.
func LoadE() error {
	Cfg = Settings{}
	if err := envconfig.Process("COHUB", &Cfg); err != nil {
		return err
	}
	if Cfg.StatePath == "" {
		Cfg.StatePath = filepath.Join(configDir(), "state.db")
	}
	if Cfg.LogPath == "" {
		Cfg.LogPath = filepath.Join(filepath.Dir(Cfg.StatePath), "cohub.log")
	}
	return nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "cohub")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cohub")
	}
	return filepath.Join(home, ".config", "cohub")
}
