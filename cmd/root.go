package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fable/internal/config"
	"fable/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fable",
	Short: "Fable - Storybook Narration Service",
	Long: `Fable is a storybook narration backend. It synthesizes page narration
audio and produces word-level timelines for read-along highlighting.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.fable")
	}

	// 环境变量设置
	viper.SetEnvPrefix("FABLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "fable")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// TTS / ASR
	viper.SetDefault("tts.cluster", "volcano_tts")
	viper.SetDefault("tts.voice_type", "BV115_streaming")
	viper.SetDefault("tts.sample_rate", 44100)
	viper.SetDefault("asr.cluster", "volcano_asr")

	// Narration engine
	viper.SetDefault("narration.tts_mode", "http")
	viper.SetDefault("narration.engine.max_chunk_size", 1000)
	viper.SetDefault("narration.engine.inter_chunk_pause_sec", 0.3)
	viper.SetDefault("narration.engine.min_word_duration_sec", 0.05)
	viper.SetDefault("narration.engine.duration_epsilon_sec", 0.01)
	viper.SetDefault("narration.engine.fallback_words_per_sec", 2.5)
	viper.SetDefault("narration.engine.lookahead_window", 5)
	viper.SetDefault("narration.engine.gap_cost", 2)
	viper.SetDefault("narration.engine.similarity_high", 0.7)
	viper.SetDefault("narration.engine.similarity_low", 0.4)
	viper.SetDefault("narration.engine.max_attempts", 3)
	viper.SetDefault("narration.engine.initial_backoff", "500ms")
	viper.SetDefault("narration.engine.call_timeout", "30s")
	viper.SetDefault("narration.engine.synthesis_concurrency", 4)
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
