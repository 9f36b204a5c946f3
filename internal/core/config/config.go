package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}

type App struct {
	Name string
	Env  string
	HTTP HTTP
}

type LogFile struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLSec   int    `mapstructure:"ttlsec"`
}

type NATS struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectprefix"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Limits 对应 router 上的保护性中间件
type Limits struct {
	RPS               float64
	Burst             int
	PerIPRPS          float64
	PerIPBurst        int
	MaxConcurrent     int64
	MaxBodyBytes      int64
	RequestTimeoutSec int
}

type Config struct {
	App    App
	Log    Log
	JWT    JWT
	DB     DB
	Redis  Redis `mapstructure:"redis"`
	NATS   NATS  `mapstructure:"nats"`
	Limits Limits
}

// Load 读取配置，失败直接退出进程
func Load(path string) *Config {
	c, err := load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "user-account-api")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 5)
	v.SetDefault("app.http.writetimeoutsec", 10)
	v.SetDefault("app.http.idletimeoutsec", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file.filename", "logs/app.log")
	v.SetDefault("log.file.maxsizemb", 100)
	v.SetDefault("log.file.maxbackups", 7)
	v.SetDefault("log.file.maxagedays", 30)

	v.SetDefault("jwt.issuer", "user-account-api")
	v.SetDefault("jwt.accesstokenttlmin", 60)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:users.db?_pragma=busy_timeout(5000)")
	v.SetDefault("db.maxopenconns", 20)
	v.SetDefault("db.maxidleconns", 5)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.automigrate", true)
	v.SetDefault("db.loglevel", "warn")

	v.SetDefault("redis.ttlsec", 60)
	v.SetDefault("nats.subjectprefix", "user")

	v.SetDefault("limits.rps", 200)
	v.SetDefault("limits.burst", 400)
	v.SetDefault("limits.periprps", 20)
	v.SetDefault("limits.peripburst", 40)
	v.SetDefault("limits.maxconcurrent", 300)
	v.SetDefault("limits.maxbodybytes", 1<<20)
	v.SetDefault("limits.requesttimeoutsec", 10)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if c.JWT.AccessTokenTTLMin <= 0 {
		return fmt.Errorf("config: jwt.accesstokenttlmin must be positive")
	}
	return nil
}
