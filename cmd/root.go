package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ugcstudio",
	Short: "UGC Studio - multi-scene avatar video service",
	Long: `UGC Studio turns a product script and an avatar image into a short
multi-scene marketing video by chaining scene generation, frame extraction,
lip-sync and composition jobs on third-party providers.`,
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
		viper.AddConfigPath("$HOME/.ugcstudio")
	}

	// 环境变量设置
	viper.SetEnvPrefix("UGC")
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
	viper.SetDefault("server.write_timeout", "60s")

	// AI（脚本生成）
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 800)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 14)

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "ugcstudio")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Storage
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.base_path", "./data/uploads")
	viper.SetDefault("storage.local.base_url", "/uploads")

	// Providers
	viper.SetDefault("providers.kie.base_url", "https://api.kie.ai/api/v1/veo")
	viper.SetDefault("providers.kie.model", "veo3_fast")
	viper.SetDefault("providers.kie.timeout", "30s")
	viper.SetDefault("providers.fal.base_url", "https://queue.fal.run/fal-ai/ffmpeg-api")
	viper.SetDefault("providers.fal.timeout", "30s")
	viper.SetDefault("providers.sync.base_url", "https://api.sync.so/v2")
	viper.SetDefault("providers.sync.model", "lipsync-2")
	viper.SetDefault("providers.sync.voice_id", "M1ydWt7KnBCiuv4CnEDC")
	viper.SetDefault("providers.sync.sync_mode", "loop")
	viper.SetDefault("providers.sync.timeout", "30s")

	// Pipeline
	viper.SetDefault("pipeline.default_aspect_ratio", "9:16")
	viper.SetDefault("pipeline.default_language", "bg")
	viper.SetDefault("pipeline.default_duration", 8)
	viper.SetDefault("pipeline.max_duration", 64)
	viper.SetDefault("pipeline.step_lock_ttl", "2m")
	viper.SetDefault("pipeline.task_cache_ttl", "6h")
	viper.SetDefault("pipeline.lip_sync_timeout", "10m")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
