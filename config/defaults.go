// =============================================================================
// 📦 AnswerFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/answerflow/pipeline"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Pipeline:   pipeline.DefaultConfig(),
		LLM:        DefaultLLMConfig(),
		LightRAG:   DefaultLightRAGConfig(),
		Tavily:     DefaultTavilyConfig(),
		Redis:      DefaultRedisConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		Model:      "gpt-4o-mini",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}
}

// DefaultLightRAGConfig 返回默认 LightRAG 配置
func DefaultLightRAGConfig() LightRAGConfig {
	return LightRAGConfig{
		BaseURL: "http://localhost:9621",
		APIKey:  "",
		Timeout: 60 * time.Second,
	}
}

// DefaultTavilyConfig 返回默认 Tavily 配置
func DefaultTavilyConfig() TavilyConfig {
	return TavilyConfig{
		BaseURL:      "https://api.tavily.com",
		APIKey:       "",
		Timeout:      15 * time.Second,
		RateLimitRPS: 2,
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

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend:   "memory",
		TTL:       24 * time.Hour,
		KeyPrefix: "answerflow:checkpoint:",
		MaxTurns:  20,
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
