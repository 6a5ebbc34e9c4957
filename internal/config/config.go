package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string `mapstructure:"mode"`
	Port         int    `mapstructure:"port"`
	Secret       string `mapstructure:"secret"`
	SignalingURL string `mapstructure:"signaling_url"`
	APIKey       string `mapstructure:"api_key"`

	RetryAttempts    int           `mapstructure:"retry_attempts"`
	FirstFrameWait   time.Duration `mapstructure:"first_frame_wait"`
	ReconnectWait    time.Duration `mapstructure:"reconnect_wait"`
	StopWait         time.Duration `mapstructure:"stop_wait"`
	PrewarmTTL       time.Duration `mapstructure:"prewarm_ttl"`
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	PoorDownlinkMbps float64       `mapstructure:"poor_downlink_mbps"`
	GoodDownlinkMbps float64       `mapstructure:"good_downlink_mbps"`
	PoorRTT          time.Duration `mapstructure:"poor_rtt"`
	GoodRTT          time.Duration `mapstructure:"good_rtt"`
	SpeechPerChar    time.Duration `mapstructure:"speech_per_char"`
	SpeechMinimum    time.Duration `mapstructure:"speech_minimum"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("signaling_url", "wss://localhost:9443/ws/signal")
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("first_frame_wait", "15s")
	v.SetDefault("reconnect_wait", "30s")
	v.SetDefault("stop_wait", "5s")
	v.SetDefault("prewarm_ttl", "60s")
	v.SetDefault("sample_interval", "5s")
	v.SetDefault("poor_downlink_mbps", 1.0)
	v.SetDefault("good_downlink_mbps", 3.0)
	v.SetDefault("poor_rtt", "400ms")
	v.SetDefault("good_rtt", "150ms")
	v.SetDefault("speech_per_char", "60ms")
	v.SetDefault("speech_minimum", "1500ms")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signaling: %s\n", cfg.Mode, cfg.Port, cfg.SignalingURL)
	return &cfg, nil
}
