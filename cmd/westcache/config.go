package main

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/llx1993/westcache"
	"github.com/spf13/viper"
)

// Config 是命令行工具的全部配置，来自环境变量 (WESTCACHE_ 前缀) 和 .env 文件。
type Config struct {
	Log      LogConfig                   `mapstructure:"log"`
	Redis    RedisConfig                 `mapstructure:"redis"`
	Database westcache.DatabaseConfig    `mapstructure:"database"`
	Storage  westcache.ObjectStoreConfig `mapstructure:"storage"`
	Flusher  FlusherConfig               `mapstructure:"flusher"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"auto"` // auto | console | json
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr" default:"127.0.0.1:6379"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" default:"0"`
	Prefix   string `mapstructure:"prefix" default:"westcache:"`
}

// FlusherConfig 控制表和引擎配置
type FlusherConfig struct {
	Source          string        `mapstructure:"source" default:"redis"` // redis | mysql
	Key             string        `mapstructure:"key" default:"default"`  // watch 启动时使用的缓存 Key
	RotateInterval  time.Duration `mapstructure:"rotate_interval" default:"1m"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" default:"3s"`
	Snapshot        string        `mapstructure:"snapshot" default:"none"` // none | file | redis | minio
	SnapshotDir     string        `mapstructure:"snapshot_dir" default:".westcache"`
}

// LoadConfig 从 dir/.env 和环境变量加载配置。
func LoadConfig(dir string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	// WESTCACHE_REDIS_ADDR -> redis.addr
	v.SetEnvPrefix("WESTCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues 递归读取 mapstructure/default 标签设置默认值，
// 同时注册每个 Key，AutomaticEnv 才能找到它们。
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
