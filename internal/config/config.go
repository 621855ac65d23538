package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"cockpit/fusion/internal/types"
)

type Config struct {
	Server struct {
		Addr     string
		LogLevel string
	}
	Ingest struct {
		Addr string
	}
	Profiles struct {
		Path string
	}
	Interaction struct {
		Sink       string
		CSVPath    string
		SQLitePath string
		Queue      int
		MemoryCap  int
	}
	Fusion struct {
		IdleTick            time.Duration
		GazeOffThreshold    time.Duration
		HeadHold            time.Duration
		EyesClosedThreshold time.Duration
		WarningUnresponsive time.Duration
		InitialScene        types.Scene
		InitialUser         string
		VoiceQueue          int
	}
	Feedback struct {
		Lang                 string
		PassiveVoiceFallback bool
		UrgentVolumeBoost    int
		VolumeCap            int
		ChannelTimeout       time.Duration
	}
	Auth struct {
		TokenSecret   string
		TokenSkewSecs int
		TokenTTL      time.Duration
	}
	Personalize struct {
		Interval time.Duration
	}
}

// Load reads defaults, an optional config file and the environment, in
// increasing precedence.
func Load(file string, log *zap.Logger) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("ingest.addr", ":9090")
	v.SetDefault("profiles.path", "data/user_profiles.yaml")

	v.SetDefault("interaction.sink", "csv")
	v.SetDefault("interaction.csv_path", "data/interaction_log.csv")
	v.SetDefault("interaction.sqlite_path", "data/interaction_log.db")
	v.SetDefault("interaction.queue", 256)
	v.SetDefault("interaction.memory_cap", 200)

	v.SetDefault("fusion.idle_tick_ms", 1000)
	v.SetDefault("fusion.gaze_off_threshold_ms", 3000)
	v.SetDefault("fusion.head_hold_ms", 1000)
	v.SetDefault("fusion.eyes_closed_threshold_ms", 2000)
	v.SetDefault("fusion.warning_unresponsive_ms", 0)
	v.SetDefault("fusion.initial_scene", string(types.SceneFreeRecognition))
	v.SetDefault("fusion.initial_user", "guest_user")
	v.SetDefault("fusion.voice_queue", 8)

	v.SetDefault("feedback.lang", "zh-CN")
	v.SetDefault("feedback.passive_voice_fallback", true)
	v.SetDefault("feedback.urgent_volume_boost", 20)
	v.SetDefault("feedback.volume_cap", 90)
	v.SetDefault("feedback.channel_timeout_ms", 5000)

	v.SetDefault("auth.token_skew_secs", 30)
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("personalize.interval", "0s")

	// short env names
	v.BindEnv("server.addr", "FUSION_ADDR")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("ingest.addr", "INGEST_ADDR")
	v.BindEnv("profiles.path", "PROFILES_PATH")
	v.BindEnv("interaction.sink", "INTERACTION_SINK")
	v.BindEnv("auth.token_secret", "FUSION_TOKEN_SECRET")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var c Config
	c.Server.Addr = v.GetString("server.addr")
	c.Server.LogLevel = v.GetString("log.level")
	c.Ingest.Addr = v.GetString("ingest.addr")
	c.Profiles.Path = v.GetString("profiles.path")

	c.Interaction.Sink = strings.ToLower(v.GetString("interaction.sink"))
	c.Interaction.CSVPath = v.GetString("interaction.csv_path")
	c.Interaction.SQLitePath = v.GetString("interaction.sqlite_path")
	c.Interaction.Queue = v.GetInt("interaction.queue")
	c.Interaction.MemoryCap = v.GetInt("interaction.memory_cap")

	c.Fusion.IdleTick = ms(v, "fusion.idle_tick_ms")
	c.Fusion.GazeOffThreshold = ms(v, "fusion.gaze_off_threshold_ms")
	c.Fusion.HeadHold = ms(v, "fusion.head_hold_ms")
	c.Fusion.EyesClosedThreshold = ms(v, "fusion.eyes_closed_threshold_ms")
	c.Fusion.WarningUnresponsive = ms(v, "fusion.warning_unresponsive_ms")
	c.Fusion.InitialUser = v.GetString("fusion.initial_user")
	c.Fusion.VoiceQueue = v.GetInt("fusion.voice_queue")
	sc, ok := types.ParseScene(v.GetString("fusion.initial_scene"))
	if !ok {
		return Config{}, fmt.Errorf("fusion.initial_scene: unknown scene %q", v.GetString("fusion.initial_scene"))
	}
	c.Fusion.InitialScene = sc

	c.Feedback.Lang = v.GetString("feedback.lang")
	c.Feedback.PassiveVoiceFallback = v.GetBool("feedback.passive_voice_fallback")
	c.Feedback.UrgentVolumeBoost = v.GetInt("feedback.urgent_volume_boost")
	c.Feedback.VolumeCap = v.GetInt("feedback.volume_cap")
	c.Feedback.ChannelTimeout = ms(v, "feedback.channel_timeout_ms")

	c.Auth.TokenSecret = v.GetString("auth.token_secret")
	c.Auth.TokenSkewSecs = v.GetInt("auth.token_skew_secs")
	c.Auth.TokenTTL = v.GetDuration("auth.token_ttl")

	c.Personalize.Interval = v.GetDuration("personalize.interval")

	switch c.Interaction.Sink {
	case "csv", "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("interaction.sink: unknown sink %q", c.Interaction.Sink)
	}

	if log != nil {
		log.Info("config loaded",
			zap.String("addr", c.Server.Addr),
			zap.String("ingest_addr", c.Ingest.Addr),
			zap.String("profiles", c.Profiles.Path),
			zap.String("sink", c.Interaction.Sink),
			zap.String("scene", string(c.Fusion.InitialScene)),
			zap.Bool("auth", c.Auth.TokenSecret != ""))
	}
	return c, nil
}

func ms(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}
