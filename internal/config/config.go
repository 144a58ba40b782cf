package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Bot       BotConfig
	API       APIConfig
	PushinPay PushinPayConfig
	Rules     RulesConfig
}

type ServerConfig struct {
	Port      int
	Env       string // "development", "production"
	PublicURL string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type StoreConfig struct {
	Driver string // "redis", "mysql", "memory"
	Prefix string
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token       string
	Username    string
	ChannelID   int64
	ChannelLink string
	AdminIDs    []int64
	APIURL      string
	UpdateMode  string // "auto", "polling", "webhook"
	WebhookURL  string
}

type APIConfig struct {
	Key string
}

type PushinPayConfig struct {
	BaseURL string
	// Token is the platform credential used for withdrawal payouts only.
	Token string
}

// RulesConfig holds the platform-wide business rules.
type RulesConfig struct {
	CommissionRate     decimal.Decimal
	MinWithdrawal      decimal.Decimal
	WithdrawalInterval time.Duration
	MaxBotsPerUser     int
	MaxGroupsPerBot    int
	AdminVIPTrial      time.Duration
	ReferralExpiry     time.Duration
	ReferralMinSales   int
	ReferralMinAmount  decimal.Decimal
	PaymentPoll        time.Duration
	PaymentAttempts    int
	LinkCodeTTL        time.Duration
	InviteLinkTTL      time.Duration
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOG_OUTPUT", "stdout")
	viper.SetDefault("STORE_DRIVER", "redis")
	viper.SetDefault("STORE_PREFIX", "zenyx")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	viper.SetDefault("BOT_UPDATE_MODE", "auto")
	viper.SetDefault("PUSHINPAY_BASE_URL", "https://api.pushinpay.com.br")
	viper.SetDefault("COMMISSION_RATE", "0.20")
	viper.SetDefault("MIN_WITHDRAWAL", "30.00")
	viper.SetDefault("WITHDRAWAL_INTERVAL_DAYS", 15)
	viper.SetDefault("MAX_BOTS_PER_USER", 3)
	viper.SetDefault("MAX_GROUPS_PER_BOT", 5)
	viper.SetDefault("ADMIN_VIP_TRIAL_DAYS", 30)
	viper.SetDefault("REFERRAL_EXPIRY_DAYS", 15)
	viper.SetDefault("REFERRAL_MIN_SALES", 3)
	viper.SetDefault("REFERRAL_MIN_AMOUNT", "9.90")
	viper.SetDefault("PAYMENT_POLL_INTERVAL", "30s")
	viper.SetDefault("PAYMENT_POLL_ATTEMPTS", 60)
	viper.SetDefault("LINK_CODE_TTL", "1h")
	viper.SetDefault("INVITE_LINK_TTL", "24h")

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetInt("APP_PORT"),
			Env:       viper.GetString("APP_ENV"),
			PublicURL: viper.GetString("APP_PUBLIC_URL"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(viper.GetString("STORE_DRIVER")),
			Prefix: viper.GetString("STORE_PREFIX"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:       viper.GetString("BOT_TOKEN"),
			Username:    strings.TrimPrefix(viper.GetString("BOT_USERNAME"), "@"),
			ChannelID:   viper.GetInt64("CHANNEL_ID"),
			ChannelLink: viper.GetString("CHANNEL_LINK"),
			AdminIDs:    ParseIDs(viper.GetString("ADMIN_IDS")),
			APIURL:      viper.GetString("TELEGRAM_API_URL"),
			UpdateMode:  strings.ToLower(viper.GetString("BOT_UPDATE_MODE")),
			WebhookURL:  viper.GetString("BOT_WEBHOOK_URL"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		PushinPay: PushinPayConfig{
			BaseURL: viper.GetString("PUSHINPAY_BASE_URL"),
			Token:   viper.GetString("PUSHINPAY_TOKEN"),
		},
		Rules: RulesConfig{
			CommissionRate:     decimalOr("COMMISSION_RATE", "0.20"),
			MinWithdrawal:      decimalOr("MIN_WITHDRAWAL", "30.00"),
			WithdrawalInterval: days("WITHDRAWAL_INTERVAL_DAYS"),
			MaxBotsPerUser:     viper.GetInt("MAX_BOTS_PER_USER"),
			MaxGroupsPerBot:    viper.GetInt("MAX_GROUPS_PER_BOT"),
			AdminVIPTrial:      days("ADMIN_VIP_TRIAL_DAYS"),
			ReferralExpiry:     days("REFERRAL_EXPIRY_DAYS"),
			ReferralMinSales:   viper.GetInt("REFERRAL_MIN_SALES"),
			ReferralMinAmount:  decimalOr("REFERRAL_MIN_AMOUNT", "9.90"),
			PaymentPoll:        durationOr("PAYMENT_POLL_INTERVAL", 30*time.Second),
			PaymentAttempts:    viper.GetInt("PAYMENT_POLL_ATTEMPTS"),
			LinkCodeTTL:        durationOr("LINK_CODE_TTL", time.Hour),
			InviteLinkTTL:      durationOr("INVITE_LINK_TTL", 24*time.Hour),
		},
	}

	if cfg.Bot.Token == "" {
		log.Println("WARNING: BOT_TOKEN is not set")
	}
	if cfg.Store.Driver == "mysql" && cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if len(cfg.Bot.AdminIDs) == 0 {
		log.Println("WARNING: ADMIN_IDS is not set")
	}

	return cfg, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

// IsAdmin reports whether id is a platform admin.
func (b *BotConfig) IsAdmin(id int64) bool {
	for _, a := range b.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// ParseIDs parses a comma separated list of numeric ids, skipping junk.
func ParseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("WARNING: ignoring invalid id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func decimalOr(key, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		log.Printf("WARNING: invalid %s, using %s", key, fallback)
		return decimal.RequireFromString(fallback)
	}
	return d
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func days(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * 24 * time.Hour
}
