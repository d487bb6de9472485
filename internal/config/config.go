package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"todonest/internal/pkg/notify"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig         `json:"app"`
	MySQL    MySQLConfig       `json:"mysql"`
	Redis    RedisConfig       `json:"redis"`
	Email    notify.SMTPConfig `json:"email"`
	Security SecurityConfig    `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env"`       // 运行环境: local / prod
	LogLevel string `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API 服务监听地址

	MailQueueStream string `json:"mail_queue_stream"` // 邮件队列 Stream 名称
	MailQueueGroup  string `json:"mail_queue_group"`  // 邮件消费者组名称
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置（邮件队列使用）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// SecurityConfig 认证相关配置。
type SecurityConfig struct {
	JWTSecret       string        `json:"jwt_secret"`        // JWT 签名密钥
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`  // access 令牌有效期（如 "15m"）
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"` // refresh 令牌有效期（如 "168h"）
	OtpTTL          time.Duration `json:"otp_ttl"`           // 验证码有效期（如 "5m"）
	OtpLength       int           `json:"otp_length"`        // 验证码位数
}

// Load 从 JSON 文件加载配置。
//
// 配置文件不存在时使用默认值；环境变量始终优先覆盖文件内容。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":8080",
			MailQueueStream: "todonest:mail:queue",
			MailQueueGroup:  "mailer_group",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/todonest?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: notify.SMTPConfig{
			Host:     "smtp.gmail.com",
			Port:     587,
			User:     "",
			Pass:     "",
			From:     "",
			FromName: "Todonest",
		},
		Security: SecurityConfig{
			JWTSecret:       "dev_secret_change_me",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			OtpTTL:          5 * time.Minute,
			OtpLength:       6,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MailQueueStream == "" {
		cfg.App.MailQueueStream = defaults.App.MailQueueStream
	}
	if cfg.App.MailQueueGroup == "" {
		cfg.App.MailQueueGroup = defaults.App.MailQueueGroup
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.Port == 0 {
		cfg.Email.Port = defaults.Email.Port
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = defaults.Email.FromName
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.AccessTokenTTL == 0 {
		cfg.Security.AccessTokenTTL = defaults.Security.AccessTokenTTL
	}
	if cfg.Security.RefreshTokenTTL == 0 {
		cfg.Security.RefreshTokenTTL = defaults.Security.RefreshTokenTTL
	}
	if cfg.Security.OtpTTL == 0 {
		cfg.Security.OtpTTL = defaults.Security.OtpTTL
	}
	if cfg.Security.OtpLength == 0 {
		cfg.Security.OtpLength = defaults.Security.OtpLength
	}
}

// applyEnvOverrides 使用环境变量覆盖配置。敏感项（密钥、密码）通过 viper 绑定读取。
func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_MAIL_QUEUE_STREAM"); v != "" {
		cfg.App.MailQueueStream = v
	}
	if v := os.Getenv("APP_MAIL_QUEUE_GROUP"); v != "" {
		cfg.App.MailQueueGroup = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.AccessTokenTTL = time.Duration(i) * time.Minute
		}
	}
	if v := os.Getenv("REFRESH_TOKEN_EXPIRE_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.RefreshTokenTTL = time.Duration(i) * 24 * time.Hour
		}
	}
	if v := os.Getenv("OTP_EXPIRE_MINUTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.OtpTTL = time.Duration(i) * time.Minute
		}
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_NAME") || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := os.Getenv("DB_HOST"); v != "" {
			port := "3306"
			if parts := strings.Split(parsed.Addr, ":"); len(parts) == 2 && parts[1] != "" {
				port = parts[1]
			}
			if p := os.Getenv("DB_PORT"); p != "" {
				port = p
			}
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.Port = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.User = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.Pass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		cfg.Email.FromName = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// parseMySQLDSN 解析 DSN，失败时返回本地默认配置。
func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "todonest",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
		OtpTTL          string `json:"otp_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.AccessTokenTTL != "" {
		d, err := time.ParseDuration(aux.AccessTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid access_token_ttl format: %w", err)
		}
		s.AccessTokenTTL = d
	}
	if aux.RefreshTokenTTL != "" {
		d, err := time.ParseDuration(aux.RefreshTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid refresh_token_ttl format: %w", err)
		}
		s.RefreshTokenTTL = d
	}
	if aux.OtpTTL != "" {
		d, err := time.ParseDuration(aux.OtpTTL)
		if err != nil {
			return fmt.Errorf("invalid otp_ttl format: %w", err)
		}
		s.OtpTTL = d
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
		OtpTTL          string `json:"otp_ttl"`
		*Alias
	}{
		AccessTokenTTL:  s.AccessTokenTTL.String(),
		RefreshTokenTTL: s.RefreshTokenTTL.String(),
		OtpTTL:          s.OtpTTL.String(),
		Alias:           (*Alias)(&s),
	})
}
