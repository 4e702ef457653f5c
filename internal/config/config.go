// ABOUTME: Configuration loading for the player and the relay
// ABOUTME: Merges defaults, an optional roomcast.yaml, ROOMCAST_ env vars and flags
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/harperreed/roomcast-go/pkg/audio/output"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "ROOMCAST"
	configName = "roomcast"

	DefaultEndpoint = "wss://socketbe.onrender.com"
	DefaultRoom     = "r1"
	DefaultUser     = "Receiver"
	DefaultPort     = 8927
)

// Player holds the receiver CLI configuration
type Player struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Room          string        `mapstructure:"room"`
	User          string        `mapstructure:"user"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	BitDepth      int           `mapstructure:"bit_depth"`
	BufferFactor  int           `mapstructure:"buffer_factor"`
	QueueFrames   int           `mapstructure:"queue_frames"`
	Output        string        `mapstructure:"output"`
	Volume        int           `mapstructure:"volume"`
	CloseTimeout  time.Duration `mapstructure:"close_timeout"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	Discover      time.Duration `mapstructure:"discover_timeout"`
	LogFile       string        `mapstructure:"log_file"`
	LogLevel      string        `mapstructure:"log_level"`
	TUI           bool          `mapstructure:"tui"`
	AutoStart     bool          `mapstructure:"autostart"`
	AutoEnable    bool          `mapstructure:"enable_audio"`
	ConfigFileUse string        `mapstructure:"-"`
}

// Format returns the configured PCM format
func (p *Player) Format() audio.Format {
	return audio.Format{
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
		BitDepth:   p.BitDepth,
	}
}

// Relay holds the signaling relay configuration
type Relay struct {
	Port       int    `mapstructure:"port"`
	Name       string `mapstructure:"name"`
	Room       string `mapstructure:"room"`
	Tone       bool   `mapstructure:"tone"`
	ToneHz     int    `mapstructure:"tone_hz"`
	AudioFile  string `mapstructure:"audio"`
	MDNS       bool   `mapstructure:"mdns"`
	LogFile    string `mapstructure:"log_file"`
	LogLevel   string `mapstructure:"log_level"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	SendBuffer int    `mapstructure:"send_buffer"`
}

// LoadPlayer parses args (without the program name) into a Player config
func LoadPlayer(args []string) (*Player, error) {
	fs := pflag.NewFlagSet("roomcast", pflag.ContinueOnError)
	fs.String("endpoint", DefaultEndpoint, "Signaling WebSocket URL (empty: discover a relay via mDNS)")
	fs.String("room", DefaultRoom, "Room to join")
	fs.String("user", DefaultUser, "User id announced in the room")
	fs.Int("sample-rate", audio.DefaultSampleRate, "PCM sample rate of the stream")
	fs.Int("channels", audio.DefaultChannels, "PCM channel count of the stream")
	fs.Int("bit-depth", audio.DefaultBitDepth, "PCM bit depth of the stream")
	fs.Int("buffer-factor", audio.DefaultBufferFactor, "Device buffer size as a multiple of the minimum")
	fs.Int("queue-frames", 32, "Frames queued between the socket and the device")
	fs.String("output", output.BackendMalgo, "Audio output backend (malgo, oto)")
	fs.Int("volume", 100, "Initial volume (0-100)")
	fs.Duration("close-timeout", 2*time.Second, "How long to wait for the close handshake")
	fs.Duration("dial-timeout", 0, "Connect timeout (0 = none)")
	fs.Duration("discover-timeout", 10*time.Second, "How long to browse for a relay")
	fs.String("log-file", "roomcast.log", "Log file path")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Bool("tui", true, "Show the terminal UI (--tui=false streams logs)")
	fs.Bool("autostart", true, "Start receiving immediately")
	fs.Bool("enable-audio", false, "Open the audio gate without waiting for the prompt")
	fs.String("config", "", "Config file (default: ./roomcast.yaml if present)")

	v, err := newViper(fs, args)
	if err != nil {
		return nil, err
	}

	var cfg Player
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ConfigFileUse = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRelay parses args (without the program name) into a Relay config
func LoadRelay(args []string) (*Relay, error) {
	fs := pflag.NewFlagSet("roomcast-relay", pflag.ContinueOnError)
	fs.Int("port", DefaultPort, "WebSocket listen port")
	fs.String("name", "", "Relay name for mDNS (default: hostname-roomcast-relay)")
	fs.String("room", DefaultRoom, "Room the built-in sender joins")
	fs.Bool("tone", false, "Stream a test tone into the room")
	fs.Int("tone-hz", 440, "Test tone frequency")
	fs.String("audio", "", "MP3 file to stream into the room")
	fs.Bool("mdns", true, "Advertise the relay via mDNS")
	fs.String("log-file", "roomcast-relay.log", "Log file path")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Int64("read-limit", 1<<20, "Largest accepted message in bytes")
	fs.Int("send-buffer", 64, "Messages queued per member before dropping")
	fs.String("config", "", "Config file (default: ./roomcast.yaml if present)")

	v, err := newViper(fs, args)
	if err != nil {
		return nil, err
	}

	var cfg Relay
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = fmt.Sprintf("%s-roomcast-relay", hostname)
	}
	return &cfg, nil
}

// newViper binds fs into a viper instance; dashed flag names map to
// underscored keys so ROOMCAST_LOG_FILE and log_file both reach --log-file
func newViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

func (p *Player) validate() error {
	if err := p.Format().Validate(); err != nil {
		return err
	}
	if p.Volume < 0 || p.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", p.Volume)
	}
	if p.BufferFactor < 1 {
		return fmt.Errorf("buffer factor must be at least 1, got %d", p.BufferFactor)
	}
	if p.QueueFrames < 1 {
		return fmt.Errorf("queue frames must be at least 1, got %d", p.QueueFrames)
	}
	return nil
}
