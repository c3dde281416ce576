package config

import (
	"log"
	"time"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// ServerConfig holds relay server configuration
type ServerConfig struct {
	Addr         string        `json:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// ClientConfig holds call-client configuration
type ClientConfig struct {
	RelayURL      string   `json:"relay_url"`       // ws:// or wss:// endpoint of the signaling relay
	APIBaseURL    string   `json:"api_base_url"`    // REST base for auth / call history
	SignDetectURL string   `json:"sign_detect_url"` // REST endpoint for sign detection
	STUNServers   []string `json:"stun_servers"`
}

var GlobalConfig *Config

// Config System common config
type Config struct {
	Server     ServerConfig
	Client     ClientConfig
	Log        logger.LogConfig
	Mode       string `env:"MODE"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	RedisAddr  string `env:"REDIS_ADDR"`
	ServerName string `env:"SERVER_NAME"`
}

func Load() error {
	// 1. 根据环境加载 .env 文件（如果不存在也不报错，使用默认值）
	mode := utils.GetStringOrDefault("MODE", "development")
	err := utils.LoadEnv(mode)
	if err != nil {
		// .env文件不存在时只记录日志，不影响启动
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}
	// 2. 加载全局配置（所有配置都有默认值，确保无.env文件也能启动）
	GlobalConfig = &Config{
		Server: ServerConfig{
			Addr:         utils.GetStringOrDefault("ADDR", ":5000"),
			ReadTimeout:  time.Duration(utils.GetIntOrDefault("READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(utils.GetIntOrDefault("WRITE_TIMEOUT", 30)) * time.Second,
			IdleTimeout:  time.Duration(utils.GetIntOrDefault("IDLE_TIMEOUT", 120)) * time.Second,
		},
		Client: ClientConfig{
			RelayURL:      utils.GetStringOrDefault("RELAY_URL", "ws://localhost:5000/ws"),
			APIBaseURL:    utils.GetStringOrDefault("API_BASE_URL", "http://localhost:5000/api"),
			SignDetectURL: utils.GetStringOrDefault("SIGN_DETECT_URL", "http://localhost:5001/api/sign/detect"),
			STUNServers: []string{
				utils.GetStringOrDefault("STUN_SERVER", "stun:stun.l.google.com:19302"),
				"stun:stun1.l.google.com:19302",
			},
		},
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault("LOG_LEVEL", "info"),
			Filename:   utils.GetStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", true),
		},
		Mode:       mode,
		DBDriver:   utils.GetStringOrDefault("DB_DRIVER", "sqlite"),
		DSN:        utils.GetStringOrDefault("DSN", "./lingbridge.db"),
		RedisAddr:  utils.GetStringOrDefault("REDIS_ADDR", ""),
		ServerName: utils.GetStringOrDefault("SERVER_NAME", "LingBridge"),
	}
	return nil
}
