package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "zoneserver.cfg.json"

// EngineConfig holds the game constants.
type EngineConfig struct {
	PickupRadiusMeters    float64
	DetectionRadiusMeters float64
	ExtractionHold        time.Duration
	ExtractionGrace       time.Duration
	TradeSessionTTL       time.Duration
	MaxResist             float64
	RadiationStacking     string // strongest or sum
	MaxTickElapsed        time.Duration
	CaptureTime           time.Duration
	MaxActiveQuests       int
	FailQuestsOnDeath     bool
	ExtractionReputation  int
	DefaultLives          int
	DefaultBalance        int64

	// Chances are percentages rolled per item unit.
	DeathItemLossPct int
	LootMoneyMinPct  int
	LootMoneyMaxPct  int
	LootEquipmentPct int
	LootArtifactPct  int
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// HTTPConfig holds the API listener settings
type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds the gameplay telemetry sink settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// DBConfig holds the Postgres connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN renders the Postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// Token binds a bearer token to a player and role.
type Token struct {
	PlayerID string `mapstructure:"playerId"`
	Role     string `mapstructure:"role"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
// Environment variables prefixed with ZONE_ override file values.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers default values and environment overrides.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./zonelogs")

	viper.SetDefault("game.pickupRadiusMeters", 2.0)
	viper.SetDefault("game.detectionRadiusMeters", 15.0)
	viper.SetDefault("game.extractionHoldSeconds", 30)
	viper.SetDefault("game.extractionGraceSeconds", 30)
	viper.SetDefault("game.tradeSessionTTLSeconds", 300)
	viper.SetDefault("game.maxResist", 0.95)
	viper.SetDefault("game.radiationStacking", "strongest")
	viper.SetDefault("game.maxTickElapsedSeconds", 300)
	viper.SetDefault("game.captureSeconds", 30)
	viper.SetDefault("game.maxActiveQuests", 5)
	viper.SetDefault("game.failQuestsOnDeath", true)
	viper.SetDefault("game.extractionReputation", 5)
	viper.SetDefault("game.defaultLives", 4)
	viper.SetDefault("game.defaultBalance", 1000)
	viper.SetDefault("game.deathItemLossPct", 10)
	viper.SetDefault("game.loot.moneyMinPct", 1)
	viper.SetDefault("game.loot.moneyMaxPct", 50)
	viper.SetDefault("game.loot.equipmentPct", 5)
	viper.SetDefault("game.loot.artifactPct", 3)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "zone")

	viper.SetDefault("http.address", ":8080")
	viper.SetDefault("http.readTimeout", "10s")
	viper.SetDefault("http.writeTimeout", "10s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "zone-metrics")
	viper.SetDefault("influx.bucket", "gameplay")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "zoneserver")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("janitor.interval", "1m")
	viper.SetDefault("seed.file", "")

	viper.SetEnvPrefix("ZONE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func seconds(key string) time.Duration {
	return time.Duration(viper.GetFloat64(key) * float64(time.Second))
}

// GetEngineConfig returns the game constants.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		PickupRadiusMeters:    viper.GetFloat64("game.pickupRadiusMeters"),
		DetectionRadiusMeters: viper.GetFloat64("game.detectionRadiusMeters"),
		ExtractionHold:        seconds("game.extractionHoldSeconds"),
		ExtractionGrace:       seconds("game.extractionGraceSeconds"),
		TradeSessionTTL:       seconds("game.tradeSessionTTLSeconds"),
		MaxResist:             viper.GetFloat64("game.maxResist"),
		RadiationStacking:     viper.GetString("game.radiationStacking"),
		MaxTickElapsed:        seconds("game.maxTickElapsedSeconds"),
		CaptureTime:           seconds("game.captureSeconds"),
		MaxActiveQuests:       viper.GetInt("game.maxActiveQuests"),
		FailQuestsOnDeath:     viper.GetBool("game.failQuestsOnDeath"),
		ExtractionReputation:  viper.GetInt("game.extractionReputation"),
		DefaultLives:          viper.GetInt("game.defaultLives"),
		DefaultBalance:        viper.GetInt64("game.defaultBalance"),
		DeathItemLossPct:      viper.GetInt("game.deathItemLossPct"),
		LootMoneyMinPct:       viper.GetInt("game.loot.moneyMinPct"),
		LootMoneyMaxPct:       viper.GetInt("game.loot.moneyMaxPct"),
		LootEquipmentPct:      viper.GetInt("game.loot.equipmentPct"),
		LootArtifactPct:       viper.GetInt("game.loot.artifactPct"),
	}
}

// DefaultEngineConfig returns the built-in game constants without reading viper.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PickupRadiusMeters:    2,
		DetectionRadiusMeters: 15,
		ExtractionHold:        30 * time.Second,
		ExtractionGrace:       30 * time.Second,
		TradeSessionTTL:       5 * time.Minute,
		MaxResist:             0.95,
		RadiationStacking:     "strongest",
		MaxTickElapsed:        5 * time.Minute,
		CaptureTime:           30 * time.Second,
		MaxActiveQuests:       5,
		FailQuestsOnDeath:     true,
		ExtractionReputation:  5,
		DefaultLives:          4,
		DefaultBalance:        1000,
		DeathItemLossPct:      10,
		LootMoneyMinPct:       1,
		LootMoneyMaxPct:       50,
		LootEquipmentPct:      5,
		LootArtifactPct:       3,
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetHTTPConfig returns the API listener settings.
func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Address:      viper.GetString("http.address"),
		ReadTimeout:  viper.GetDuration("http.readTimeout"),
		WriteTimeout: viper.GetDuration("http.writeTimeout"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the telemetry sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetDBConfig returns the Postgres settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetJanitorInterval returns how often expired state is swept.
func GetJanitorInterval() time.Duration {
	return viper.GetDuration("janitor.interval")
}

// GetSeedFile returns the world file loaded at startup, or "".
func GetSeedFile() string {
	return viper.GetString("seed.file")
}

// GetTokens returns the static bearer tokens from auth.tokens.
func GetTokens() (map[string]Token, error) {
	tokens := map[string]Token{}
	if !viper.IsSet("auth.tokens") {
		return tokens, nil
	}
	if err := viper.UnmarshalKey("auth.tokens", &tokens); err != nil {
		return nil, fmt.Errorf("error decoding auth.tokens: %w", err)
	}
	return tokens, nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
