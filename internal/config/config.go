// Package config holds the client configuration and turns it into session
// connect info.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/zalo/remoteplay/internal/audio"
	"github.com/zalo/remoteplay/internal/logging"
	"github.com/zalo/remoteplay/internal/protocol"
	"github.com/zalo/remoteplay/internal/session"
)

// Config holds the client configuration
type Config struct {
	// Host is the hostname/IP of the console, optionally with a port
	Host string `json:"host" toml:"host"`

	// RegistKey is the hex regist key obtained when registering with the console
	RegistKey string `json:"regist_key" toml:"regist_key"`

	// Morning is the hex registration secret of the console
	Morning string `json:"morning" toml:"morning"`

	// Video holds the requested stream quality
	Video VideoSettings `json:"video" toml:"video"`

	// KeyBindings maps key names to buttons or stick directions, e.g.
	// "w" = "left_y-". Unlisted keys keep their default binding.
	KeyBindings map[string]string `json:"key_bindings" toml:"key_bindings"`

	// Log configures the logger
	Log logging.LogSink `json:"log" toml:"log"`

	// AudioBufferSize is the playback queue in bytes
	AudioBufferSize int `json:"audio_buffer_size" toml:"audio_buffer_size"`

	// HWDecodeEngine names the hardware decoder ("" or "software" to decode in software)
	HWDecodeEngine string `json:"hw_decode_engine" toml:"hw_decode_engine"`

	// Decoder is the registered codec backend frames are decoded with
	Decoder string `json:"decoder" toml:"decoder"`

	// Fullscreen is passed through to the display
	Fullscreen bool `json:"fullscreen" toml:"fullscreen"`

	// SleepOnExit asks the console to enter rest mode when the client quits
	SleepOnExit bool `json:"sleep_on_exit" toml:"sleep_on_exit"`

	// MetricsAddr serves Prometheus metrics when set (e.g., ":9100")
	MetricsAddr string `json:"metrics_addr" toml:"metrics_addr"`

	// Mirror configures the optional spectator mirror
	Mirror MirrorSettings `json:"mirror" toml:"mirror"`
}

// VideoSettings holds the requested video stream
type VideoSettings struct {
	// Preset is a resolution name: "360p", "540p", "720p" or "1080p".
	// Explicit fields below override it.
	Preset string `json:"preset" toml:"preset"`

	Width  int `json:"width,omitempty" toml:"width"`
	Height int `json:"height,omitempty" toml:"height"`

	// FPS is the maximum frame rate
	FPS int `json:"fps,omitempty" toml:"fps"`

	// Bitrate in kbps
	Bitrate int `json:"bitrate,omitempty" toml:"bitrate"`

	// Codec preference: "h264" or "h265"
	Codec string `json:"codec" toml:"codec"`
}

// MirrorSettings configures WebRTC spectators of the video stream
type MirrorSettings struct {
	// ListenAddr enables the mirror when set (e.g., ":8080")
	ListenAddr string `json:"listen_addr" toml:"listen_addr"`

	// ICEServers is a list of STUN/TURN server URLs
	ICEServers []string `json:"ice_servers" toml:"ice_servers"`

	// TURNUsername for TURN authentication (optional)
	TURNUsername string `json:"turn_username,omitempty" toml:"turn_username"`

	// TURNCredential for TURN authentication (optional)
	TURNCredential string `json:"turn_credential,omitempty" toml:"turn_credential"`

	// MaxPeers is the maximum number of spectators (default 4)
	MaxPeers int `json:"max_peers" toml:"max_peers"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Video: VideoSettings{
			Preset: "720p",
			Codec:  "h264",
		},
		Log: logging.LogSink{
			Level: "info",
		},
		AudioBufferSize: audio.DefaultBufferSize,
		Decoder:         "raw",
		Mirror: MirrorSettings{
			ICEServers: []string{
				"stun:stun.l.google.com:19302",
			},
			MaxPeers: 4,
		},
	}
}

// Load reads a config file over the defaults. Files ending in .toml are TOML,
// everything else JSON.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// VideoProfile resolves the preset and overrides into a profile.
func (c *Config) VideoProfile() (protocol.VideoProfile, error) {
	var profile protocol.VideoProfile
	if c.Video.Preset != "" {
		p, ok := protocol.VideoPreset(c.Video.Preset)
		if !ok {
			return profile, fmt.Errorf("unknown video preset %q", c.Video.Preset)
		}
		profile = p
	}

	fields := []struct {
		name string
		v    int
		max  int
	}{
		{"width", c.Video.Width, 0xffff},
		{"height", c.Video.Height, 0xffff},
		{"fps", c.Video.FPS, 0xffff},
		{"bitrate", c.Video.Bitrate, 0x7fffffff},
	}
	for _, f := range fields {
		if f.v < 0 || f.v > f.max {
			return profile, fmt.Errorf("video %s %d out of range", f.name, f.v)
		}
	}

	if c.Video.Width > 0 {
		profile.Width = uint16(c.Video.Width)
	}
	if c.Video.Height > 0 {
		profile.Height = uint16(c.Video.Height)
	}
	if c.Video.FPS > 0 {
		profile.MaxFPS = uint16(c.Video.FPS)
	}
	if c.Video.Bitrate > 0 {
		profile.BitrateKbps = uint32(c.Video.Bitrate)
	}

	codec, err := protocol.ParseCodec(strings.ToLower(c.Video.Codec))
	if err != nil {
		return profile, err
	}
	profile.Codec = codec
	return profile, nil
}

// ConnectInfo builds the session connect info. Secrets of the wrong length
// fail here, before anything touches the network.
func (c *Config) ConnectInfo() (session.ConnectInfo, error) {
	var info session.ConnectInfo

	registKey, err := session.ParseRegistKey(c.RegistKey)
	if err != nil {
		return info, err
	}
	morning, err := session.ParseMorning(c.Morning)
	if err != nil {
		return info, err
	}
	profile, err := c.VideoProfile()
	if err != nil {
		return info, err
	}
	keyMap, err := session.ParseKeyMap(c.KeyBindings)
	if err != nil {
		return info, err
	}

	info = session.ConnectInfo{
		Host:            c.Host,
		RegistKey:       registKey,
		Morning:         morning,
		Video:           profile,
		KeyMap:          keyMap,
		LogSink:         c.Log,
		AudioBufferSize: c.AudioBufferSize,
		HWDecodeEngine:  c.HWDecodeEngine,
		Fullscreen:      c.Fullscreen,
	}
	if err := info.Validate(); err != nil {
		return session.ConnectInfo{}, err
	}
	return info, nil
}
