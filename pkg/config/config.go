package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port string `mapstructure:"port"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`

	Festival FestivalConfig `mapstructure:"festival"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// FestivalConfig 定場 token / 房間生命週期相關設定
type FestivalConfig struct {
	// LocationTokenTTL geofence token 存活時間 (~10-15 min)
	LocationTokenTTL time.Duration `mapstructure:"location_token_ttl"`
	// SessionTTL refresh token 存活時間
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// ConsumedTokenTTL 已兌換 refresh token 殘留時間，吸收 at-most-once race
	ConsumedTokenTTL time.Duration `mapstructure:"consumed_token_ttl"`
	// NicknameStep 暱稱序號起始值兼步進值
	NicknameStep int64 `mapstructure:"nickname_step"`
	// EmptyRoomGrace 空房間刪除前的寬限期
	EmptyRoomGrace time.Duration `mapstructure:"empty_room_grace"`
	// InactivityWindow 無訊息多久視為不活躍
	InactivityWindow time.Duration `mapstructure:"inactivity_window"`
	// LikeRetention like 快取鍵對應訊息的保留期
	LikeRetention time.Duration `mapstructure:"like_retention"`
}

// JobsConfig 背景排程 cron 表達式
type JobsConfig struct {
	ReconcileCron     string `mapstructure:"reconcile_cron"`
	StaleKeyCron      string `mapstructure:"stale_key_cron"`
	LikeRetentionCron string `mapstructure:"like_retention_cron"`
	LifecycleCron     string `mapstructure:"lifecycle_cron"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
