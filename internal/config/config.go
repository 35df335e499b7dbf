package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Log       LogConfig       `mapstructure:"log"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// AllowedOrigins 允许跨域的前端来源，为空时允许任意来源
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AIConfig 脚本生成所用的 LLM 配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"`
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数量
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
// 身份由外部身份服务签发，这里只负责校验 Bearer Token
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"` // 身份服务的 JWT 签名密钥
	Issuer    string `mapstructure:"issuer"`     // 可选，校验 iss
	Audience  string `mapstructure:"audience"`   // 可选，校验 aud
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 基础路径
	BaseURL  string `mapstructure:"base_url"`  // 基础URL（用于生成访问URL）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
}

// ProvidersConfig 外部任务服务配置
type ProvidersConfig struct {
	Kie  KieConfig  `mapstructure:"kie"`
	Fal  FalConfig  `mapstructure:"fal"`
	Sync SyncConfig `mapstructure:"sync"`
}

// KieConfig 场景视频生成（Kie.ai Veo）
type KieConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Watermark string        `mapstructure:"watermark"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FalConfig 截帧与视频合成（fal.ai ffmpeg-api）
type FalConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig 口型同步（sync.so）
type SyncConfig struct {
	APIKey   string            `mapstructure:"api_key"`
	BaseURL  string            `mapstructure:"base_url"`
	Model    string            `mapstructure:"model"`
	VoiceID  string            `mapstructure:"voice_id"` // 默认音色
	Voices   map[string]string `mapstructure:"voices"`   // avatar_id -> voice_id
	Timeout  time.Duration     `mapstructure:"timeout"`
	SyncMode string            `mapstructure:"sync_mode"`
}

// PipelineConfig 多场景生成流水线参数
type PipelineConfig struct {
	DefaultAspectRatio string        `mapstructure:"default_aspect_ratio"`
	DefaultLanguage    string        `mapstructure:"default_language"`
	DefaultDuration    int           `mapstructure:"default_duration"`
	MaxDuration        int           `mapstructure:"max_duration"`
	StepLockTTL        time.Duration `mapstructure:"step_lock_ttl"`
	TaskCacheTTL       time.Duration `mapstructure:"task_cache_ttl"`
	LipSyncTimeout     time.Duration `mapstructure:"lip_sync_timeout"` // 进入口型同步阶段后的等待上限，超时的场景使用原始视频
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Mongo.URI == "" {
		return errors.New("mongo.uri is required (use \"memory\" for a non-persistent dev store)")
	}
	if c.Providers.Kie.APIKey == "" {
		return errors.New("providers.kie.api_key is required")
	}
	if c.Providers.Fal.APIKey == "" {
		return errors.New("providers.fal.api_key is required")
	}
	if c.Providers.Sync.APIKey == "" {
		return errors.New("providers.sync.api_key is required")
	}

	if c.Pipeline.MaxDuration > 0 && c.Pipeline.DefaultDuration > c.Pipeline.MaxDuration {
		return errors.New("pipeline.default_duration exceeds pipeline.max_duration")
	}

	return nil
}
