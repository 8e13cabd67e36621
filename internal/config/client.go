package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default client configuration values
const (
	DefaultServer   = "ws://localhost:8080/ws"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultDebounce = 150 * time.Millisecond
)

// Client holds the participant configuration
type Client struct {
	// WebSocketURL is the gateway endpoint
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Debounce is the trailing window for outbound scene updates
	Debounce time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Debounce   time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Client, error) {
	server := pick(opts.Server, env("SERVER"), DefaultServer)
	wsURL, err := normalizeServer(server)
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce == 0 {
		if v := env("DEBOUNCE"); v != "" {
			if debounce, err = time.ParseDuration(v); err != nil {
				return nil, fmt.Errorf("invalid %s_DEBOUNCE: %w", EnvPrefix, err)
			}
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		forceRelay, _ = strconv.ParseBool(env("FORCE_RELAY"))
	}

	return &Client{
		WebSocketURL: wsURL,
		STUNServer:   pick(opts.STUNServer, env("STUN_SERVER"), DefaultSTUN),
		TURNServer:   pick(opts.TURNServer, env("TURN_SERVER"), ""),
		TURNUser:     pick(opts.TURNUser, env("TURN_USERNAME"), ""),
		TURNPass:     pick(opts.TURNPass, env("TURN_PASSWORD"), ""),
		ForceRelay:   forceRelay,
		Debounce:     debounce,
	}, nil
}

// APIURL returns the HTTP(S) URL of an API path on the same server.
func (c *Client) APIURL(path string) string {
	u, _ := url.Parse(c.WebSocketURL)
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = path
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// normalizeServer accepts a bare host, an http(s) URL or a ws(s) URL and
// returns the websocket endpoint.
func normalizeServer(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func env(key string) string { return os.Getenv(EnvPrefix + "_" + key) }

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
