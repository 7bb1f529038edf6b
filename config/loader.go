// =============================================================================
// 📦 AgentCrew 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTCREW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 工作坊环境变量 → AGENTCREW_* 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentCrew 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`

	// AzureOpenAI 托管模型配置
	AzureOpenAI AzureOpenAIConfig `yaml:"azure_openai" env:"AZURE_OPENAI"`

	// MultiAgent 三方对话配置
	MultiAgent MultiAgentConfig `yaml:"multi_agent" env:"MULTI_AGENT"`

	// Chat 单 Agent 聊天配置
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// Plugins 插件配置
	Plugins PluginsConfig `yaml:"plugins" env:"PLUGINS"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT" validate:"min=1,max=65535"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT" validate:"min=0,max=65535"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，对话请求可能持续数分钟
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" validate:"min=0"`
	// 令牌桶容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" validate:"min=0"`
	// API Key 列表，为空时不校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key（websocket 客户端无法设置请求头）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// AzureOpenAIConfig Azure OpenAI 配置
type AzureOpenAIConfig struct {
	// 资源地址，例如 https://my-resource.openai.azure.com
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key，为空时使用 Azure AD 令牌
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// API 版本
	APIVersion string `yaml:"api_version" env:"API_VERSION"`
	// 聊天部署名
	ChatDeployment string `yaml:"chat_deployment" env:"CHAT_DEPLOYMENT"`
	// Embedding 部署名
	EmbeddingDeployment string `yaml:"embedding_deployment" env:"EMBEDDING_DEPLOYMENT"`
	// 文生图部署名
	ImageDeployment string `yaml:"image_deployment" env:"IMAGE_DEPLOYMENT"`
	// 文生图资源可以位于独立的 endpoint
	ImageEndpoint string `yaml:"image_endpoint" env:"IMAGE_ENDPOINT"`
	ImageAPIKey   string `yaml:"image_api_key" env:"IMAGE_API_KEY"`
	// HTTP 超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE" validate:"min=0,max=2"`
	// 最大 Token 数，0 表示由服务端决定
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS" validate:"min=0"`
}

// MultiAgentConfig 三方对话配置
type MultiAgentConfig struct {
	// 最大迭代次数
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS" validate:"min=1"`
	// 发言人选择策略: rules, prompt
	Selection string `yaml:"selection" env:"SELECTION" validate:"oneof=rules prompt"`
	// 批准令牌
	ApprovalToken string `yaml:"approval_token" env:"APPROVAL_TOKEN" validate:"required"`
	// 允许批准的参与者，为空表示不限制
	Approvers []string `yaml:"approvers" env:"APPROVERS"`
	// 是否把角色设定作为 system 消息写入对话记录
	SeedPersonas bool `yaml:"seed_personas" env:"SEED_PERSONAS"`
	// 单次发言超时
	TurnTimeout time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
	// 单次发言最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES" validate:"min=0"`
	// 是否持久化对话结果（需要数据库）
	PersistRuns bool `yaml:"persist_runs" env:"PERSIST_RUNS"`
}

// ChatConfig 单 Agent 聊天配置
type ChatConfig struct {
	// 工具调用最大轮数
	MaxToolIterations int `yaml:"max_tool_iterations" env:"MAX_TOOL_ITERATIONS" validate:"min=1"`
	// 历史存储: memory, redis
	HistoryBackend string `yaml:"history_backend" env:"HISTORY_BACKEND" validate:"oneof=memory redis"`
	// Redis 历史过期时间
	HistoryTTL time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
	// 系统提示词
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
}

// PluginsConfig 插件配置
type PluginsConfig struct {
	Geocoding GeocodingConfig `yaml:"geocoding" env:"GEOCODING"`
	Weather   WeatherConfig   `yaml:"weather" env:"WEATHER"`
	Search    SearchConfig    `yaml:"search" env:"SEARCH"`
	Image     ImageConfig     `yaml:"image" env:"IMAGE"`
	// 插件调用外部 HTTP 服务的超时
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
}

// GeocodingConfig 地理编码插件配置
type GeocodingConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 结果缓存时间（需要 Redis）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// WeatherConfig 天气插件配置
type WeatherConfig struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// SearchConfig 员工手册检索配置
type SearchConfig struct {
	Endpoint   string `yaml:"endpoint" env:"ENDPOINT"`
	APIKey     string `yaml:"api_key" env:"API_KEY"`
	Index      string `yaml:"index" env:"INDEX"`
	APIVersion string `yaml:"api_version" env:"API_VERSION"`
	Top        int    `yaml:"top" env:"TOP" validate:"min=1"`
}

// ImageConfig 文生图插件配置
type ImageConfig struct {
	// 图片保存目录
	Dir string `yaml:"dir" env:"DIR"`
	// 默认尺寸
	Size string `yaml:"size" env:"SIZE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER" validate:"omitempty,oneof=postgres mysql sqlite"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"min=0,max=1"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	legacyEnv  bool
	validators []func(*Config) error
	overrides  []string
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTCREW",
		legacyEnv:  true,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 控制是否读取工作坊使用的无前缀变量（AZURE_OPENAI_ENDPOINT 等）
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacyEnv = enabled
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 工作坊环境变量 → 前缀环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	overlay := newEnvOverlay()
	if l.legacyEnv {
		overlay.applyLegacy(cfg)
	}
	if err := overlay.apply(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.overrides = overlay.applied

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// Overrides 返回最近一次 Load 中生效的环境变量名（不含值）
func (l *Loader) Overrides() []string {
	return l.overrides
}

// loadFromFile 读取 YAML；文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		errs = append(errs, "jwt enabled but neither secret nor public_key set")
	}
	if c.MultiAgent.PersistRuns && !c.Database.Enabled {
		errs = append(errs, "multi_agent.persist_runs requires database.enabled")
	}
	if c.Chat.HistoryBackend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "chat.history_backend=redis requires redis.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateAzure 检查调用模型所需的字段；仅 serve/run/chat 需要
func (c *Config) ValidateAzure() error {
	var missing []string
	if c.AzureOpenAI.Endpoint == "" {
		missing = append(missing, "azure_openai.endpoint")
	}
	if c.AzureOpenAI.ChatDeployment == "" {
		missing = append(missing, "azure_openai.chat_deployment")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
