package server

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 服务端全部配置（YAML），缺省值见 DefaultConfig
type Config struct {
	ListenAddr string        `yaml:"listen_addr" env:"HEISTARENA_LISTEN_ADDR"`
	Log        LogConfig     `yaml:"log"`
	Room       RoomConfig    `yaml:"room"`
	Lobby      LobbyConfig   `yaml:"lobby"`
	Journal    JournalConfig `yaml:"journal"`
}

// LogConfig 日志文件与滚动策略
type LogConfig struct {
	File       string `yaml:"file" env:"HEISTARENA_LOG_FILE"`
	Level      string `yaml:"level" env:"HEISTARENA_LOG_LEVEL"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Stderr     bool   `yaml:"stderr" env:"HEISTARENA_LOG_STDERR"` // 同时输出到控制台
}

// RoomConfig 房间运行参数与地图布局
type RoomConfig struct {
	TicksPerSecond   int     `yaml:"ticks_per_second" env:"HEISTARENA_TICKS_PER_SECOND"`
	MoveSpeed        float64 `yaml:"move_speed"`
	LookSensitivity  float64 `yaml:"look_sensitivity"`
	InputBuffer      int     `yaml:"input_buffer"`
	MaxInputsPerTick int     `yaml:"max_inputs_per_tick"`
	// Seed 出生点洗牌种子，0 表示按时间
	Seed int64     `yaml:"seed" env:"HEISTARENA_SEED"`
	Map  MapConfig `yaml:"map"`
}

// MapConfig 地图上的各类出生点
type MapConfig struct {
	PlayerSpawns []Transform `yaml:"player_spawns"`
	NPCSpawns    []Transform `yaml:"npc_spawns"`
	DoorSpawns   []Transform `yaml:"door_spawns"`
	TrapSpawns   []Transform `yaml:"trap_spawns"`

	NPCMaxHealth  float64 `yaml:"npc_max_health"`
	DoorOpenAngle float64 `yaml:"door_open_angle"`

	TrapLaunchForce float64 `yaml:"trap_launch_force"`
	TrapLaneLength  float64 `yaml:"trap_lane_length"`
	TrapHitRadius   float64 `yaml:"trap_hit_radius"`
}

// LobbyConfig 大厅服务参数
type LobbyConfig struct {
	Enabled    bool `yaml:"enabled" env:"HEISTARENA_LOBBY_ENABLED"`
	MaxMembers int  `yaml:"max_members"`
}

// JournalConfig 对局事件日志（SQLite），Path 为空则关闭
type JournalConfig struct {
	Path   string `yaml:"path" env:"HEISTARENA_JOURNAL_PATH"`
	Buffer int    `yaml:"buffer"`
}

// DefaultConfig 返回一份可直接运行的默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Log: LogConfig{
			File:       "app.log",
			Level:      "debug",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Room: RoomConfig{
			TicksPerSecond:   20,
			MoveSpeed:        5,
			LookSensitivity:  100,
			InputBuffer:      256,
			MaxInputsPerTick: 8,
			Map: MapConfig{
				PlayerSpawns: []Transform{
					{Position: Vec3{X: 0, Z: 0}},
					{Position: Vec3{X: 4, Z: 0}},
					{Position: Vec3{X: 0, Z: 4}},
					{Position: Vec3{X: 4, Z: 4}},
				},
				NPCSpawns: []Transform{
					{Position: Vec3{X: 10, Z: 10}, Yaw: 180},
					{Position: Vec3{X: 14, Z: 10}, Yaw: 180},
				},
				DoorSpawns: []Transform{
					{Position: Vec3{X: 8, Z: 6}},
				},
				TrapSpawns: []Transform{
					{Position: Vec3{X: 20, Z: 0}},
				},
				NPCMaxHealth:    100,
				DoorOpenAngle:   90,
				TrapLaunchForce: 5,
				TrapLaneLength:  12,
				TrapHitRadius:   0.75,
			},
		},
		Lobby: LobbyConfig{
			Enabled:    true,
			MaxMembers: 4,
		},
		Journal: JournalConfig{
			Buffer: 1024,
		},
	}
}

// LoadConfig 从 YAML 文件加载配置，再用 HEISTARENA_* 环境变量覆盖；文件不存在时从默认值开始
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查会导致房间无法运行的配置
func (c Config) Validate() error {
	if c.Room.TicksPerSecond <= 0 {
		return fmt.Errorf("room.ticks_per_second must be positive, got %d", c.Room.TicksPerSecond)
	}
	if c.Room.InputBuffer <= 0 {
		return fmt.Errorf("room.input_buffer must be positive, got %d", c.Room.InputBuffer)
	}
	if c.Room.Map.NPCMaxHealth <= 0 {
		return fmt.Errorf("room.map.npc_max_health must be positive, got %v", c.Room.Map.NPCMaxHealth)
	}
	if c.Lobby.MaxMembers <= 0 {
		return fmt.Errorf("lobby.max_members must be positive, got %d", c.Lobby.MaxMembers)
	}
	return nil
}
