package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Collab struct {
		// 每个笔记本在内存中保留的最近操作条数
		RingCapacity int `mapstructure:"ringCapacity"`
		// 每应用多少个操作写一次快照，0 表示只在显式保存时写
		SnapshotEvery int `mapstructure:"snapshotEvery"`
	} `mapstructure:"collab"`
}

// Load 读取 collabConfig.yaml；NOTEBOOK_ 前缀的环境变量覆盖文件中的值，
// 例如 NOTEBOOK_REDIS_ADDR 覆盖 redis.addr。
// paths 为空时按 ./backend/config、./config、. 的顺序查找。
func Load(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("running.port", 8080)
	v.SetDefault("kafka.topic", "notebook-changes")
	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("collab.ringCapacity", 1024)
	v.SetDefault("collab.snapshotEvery", 100)

	v.SetEnvPrefix("NOTEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
