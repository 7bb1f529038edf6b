// =============================================================================
// 📦 AgentCrew 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		JWT:         JWTConfig{},
		AzureOpenAI: DefaultAzureOpenAIConfig(),
		MultiAgent:  DefaultMultiAgentConfig(),
		Chat:        DefaultChatConfig(),
		Plugins:     DefaultPluginsConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultAzureOpenAIConfig 返回默认 Azure OpenAI 配置
func DefaultAzureOpenAIConfig() AzureOpenAIConfig {
	return AzureOpenAIConfig{
		APIVersion:          "2024-06-01",
		EmbeddingDeployment: "text-embedding-ada-002",
		Timeout:             60 * time.Second,
		Temperature:         0.7,
		MaxTokens:           800,
	}
}

// DefaultMultiAgentConfig 返回默认三方对话配置
func DefaultMultiAgentConfig() MultiAgentConfig {
	return MultiAgentConfig{
		MaxIterations: 20,
		Selection:     "rules",
		ApprovalToken: "%APPR%",
		SeedPersonas:  true,
		TurnTimeout:   2 * time.Minute,
		MaxRetries:    2,
	}
}

// DefaultChatConfig 返回默认聊天配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxToolIterations: 8,
		HistoryBackend:    "memory",
		HistoryTTL:        24 * time.Hour,
		SystemPrompt:      "You are a helpful assistant. Use the available functions when they help answer the user.",
	}
}

// DefaultPluginsConfig 返回默认插件配置
func DefaultPluginsConfig() PluginsConfig {
	return PluginsConfig{
		Geocoding: GeocodingConfig{
			BaseURL:  "https://geocode.maps.co",
			CacheTTL: 24 * time.Hour,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.open-meteo.com",
		},
		Search: SearchConfig{
			Index:      "employeehandbook",
			APIVersion: "2023-11-01",
			Top:        3,
		},
		Image: ImageConfig{
			Dir:  "images",
			Size: "1024x1024",
		},
		HTTPTimeout: 30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentcrew",
		Password:        "",
		Name:            "agentcrew",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcrew",
		SampleRate:   0.1,
	}
}
