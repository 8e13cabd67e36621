package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

// EnvPrefix prefixes every environment override, e.g.
// CHRISTMAS_TREE_ADDRESS or CHRISTMAS_TREE_WEBSOCKET_SEND_BUFFER.
const EnvPrefix = "CHRISTMAS_TREE"

// Server holds the coordination server configuration.
type Server struct {
	Address         string        `fig:"address" default:":8080"`
	AllowedOrigins  []string      `fig:"allowed_origins"`
	LogLevel        string        `fig:"log_level" default:"info"`
	ShutdownTimeout time.Duration `fig:"shutdown_timeout" default:"10s"`
	Websocket       Websocket     `fig:"websocket"`
	Metrics         Metrics       `fig:"metrics"`
}

type Websocket struct {
	ReadBufferSize  int `fig:"read_buffer_size" default:"65536"`
	WriteBufferSize int `fig:"write_buffer_size" default:"65536"`
	// SendBuffer is the per-connection outbound queue. A client that lets it
	// fill up is disconnected.
	SendBuffer int `fig:"send_buffer" default:"256"`
	// MaxMessageSize must fit a photos:update carrying encoded images.
	MaxMessageSize int64         `fig:"max_message_size" default:"16777216"`
	PongWait       time.Duration `fig:"pong_wait" default:"60s"`
	WriteWait      time.Duration `fig:"write_wait" default:"10s"`
}

// PingPeriod must be less than PongWait.
func (w Websocket) PingPeriod() time.Duration { return w.PongWait * 9 / 10 }

type Metrics struct {
	Disabled bool   `fig:"disabled"`
	Path     string `fig:"path" default:"/metrics"`
}

// LoadServer reads .env (if present), then config.yaml from path or from
// the default search dirs, then environment overrides. A missing config file
// is fine when no explicit path was given.
func LoadServer(path string) (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, err
	}

	var cfg Server
	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path != "" {
		opts = append(opts, fig.File(filepath.Base(path)), fig.Dirs(filepath.Dir(path)))
	} else {
		opts = append(opts, fig.Dirs(".", "configs"))
	}

	err := fig.Load(&cfg, opts...)
	if path == "" && errors.Is(err, fig.ErrFileNotFound) {
		cfg = Server{}
		err = fig.Load(&cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	if err != nil {
		return Server{}, err
	}
	return cfg, nil
}
