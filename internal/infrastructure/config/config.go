package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
)

// Config holds all application configuration.
type Config struct {
	Devices   DeviceConfig
	Kbuf      KbufConfig
	Msgbox    MsgboxConfig
	Transport TransportConfig
	Bridge    BridgeConfig
	Server    ServerConfig
	Mux       MuxConfig
	Logging   LogConfig
}

// DeviceConfig holds device node locations.
type DeviceConfig struct {
	DSPDebug      string `envconfig:"DSP_DEBUG_DEVICE" default:"/dev/dsp_debug"`
	KbufManager   string `envconfig:"KBUF_MANAGER_DEVICE" default:"/dev/kbuf-mgr-0"`
	RpmsgCtrl     string `envconfig:"RPMSG_CTRL_DEVICE" default:"/dev/rpmsg_ctrl0"`
	RpmsgClassDir string `envconfig:"RPMSG_CLASS_DIR" default:"/sys/class/rpmsg"`
	DevDir        string `envconfig:"DEV_DIR" default:"/dev"`
}

// KbufConfig describes the ring allocation.
type KbufConfig struct {
	Name   string `envconfig:"KBUF_NAME" default:"dsp-ring"`
	Length uint32 `envconfig:"KBUF_LENGTH" default:"16384"`
	Cached bool   `envconfig:"KBUF_CACHED" default:"false"`
}

// MsgboxConfig names the notification endpoint.
type MsgboxConfig struct {
	Name string `envconfig:"MSGBOX_NAME" default:"msgbox_demo"`
	Src  uint32 `envconfig:"MSGBOX_SRC" default:"3"`
	Dst  uint32 `envconfig:"MSGBOX_DST" default:"4294967295"`
}

// TransportConfig holds handshake pacing. A zero timeout waits forever.
type TransportConfig struct {
	HandshakeBackoff time.Duration `envconfig:"HANDSHAKE_BACKOFF" default:"10ms"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"0s"`
}

// BridgeConfig holds serial bridge settings.
type BridgeConfig struct {
	LinkPath     string        `envconfig:"BRIDGE_LINK" default:"/tmp/vtty/dsp"`
	PollInterval time.Duration `envconfig:"BRIDGE_POLL_INTERVAL" default:"5ms"`
}

// ServerConfig holds status HTTP server configuration.
type ServerConfig struct {
	Addr      string `envconfig:"STATUS_ADDR" default:"127.0.0.1:9110"`
	Enabled   bool   `envconfig:"STATUS_ENABLED" default:"true"`
	RateLimit int    `envconfig:"STATUS_RATE_LIMIT" default:"20"`
	RateBurst int    `envconfig:"STATUS_RATE_BURST" default:"40"`
}

// MuxConfig holds serial multiplexer settings.
type MuxConfig struct {
	Device     string        `envconfig:"MUX_DEVICE" default:"/dev/ttyS2"`
	Baud       int           `envconfig:"MUX_BAUD" default:"115200"`
	PortTable  string        `envconfig:"MUX_PORT_TABLE" default:"/etc/serialmux/ports.toml"`
	ResyncWait time.Duration `envconfig:"MUX_RESYNC_WAIT" default:"1s"`
	StatusAddr string        `envconfig:"MUX_STATUS_ADDR" default:"127.0.0.1:9111"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Devices: DeviceConfig{
			DSPDebug:      paths.DSPDebug,
			KbufManager:   paths.KbufManager,
			RpmsgCtrl:     paths.RpmsgCtrl,
			RpmsgClassDir: paths.RpmsgClassDir,
			DevDir:        paths.DevDir,
		},
		Kbuf: KbufConfig{
			Name:   "dsp-ring",
			Length: 16384,
			Cached: false,
		},
		Msgbox: MsgboxConfig{
			Name: "msgbox_demo",
			Src:  3,
			Dst:  0xffffffff,
		},
		Transport: TransportConfig{
			HandshakeBackoff: 10 * time.Millisecond,
		},
		Bridge: BridgeConfig{
			LinkPath:     "/tmp/vtty/dsp",
			PollInterval: 5 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:9110",
			Enabled:   true,
			RateLimit: 20,
			RateBurst: 40,
		},
		Mux: MuxConfig{
			Device:     "/dev/ttyS2",
			Baud:       115200,
			PortTable:  "/etc/serialmux/ports.toml",
			ResyncWait: time.Second,
			StatusAddr: "127.0.0.1:9111",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
