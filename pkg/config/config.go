package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "AFRIBOOK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AFRIBOOK_DB_DSN"
	EnvDBHost = "AFRIBOOK_DB_HOST"
	EnvDBUser = "AFRIBOOK_DB_USER"
	EnvDBName = "AFRIBOOK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Marketplace  MarketplaceConfig
	MTN          MTNConfig
	Moov         MoovConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AFRIBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"AFRIBOOK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AFRIBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AFRIBOOK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AFRIBOOK_DB_DSN"`
	Driver string `envconfig:"AFRIBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AFRIBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"AFRIBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AFRIBOOK_DB_USER"`
	LegacyPassword string `envconfig:"AFRIBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"AFRIBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"AFRIBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AFRIBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AFRIBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AFRIBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AFRIBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AFRIBOOK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AFRIBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"AFRIBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"AFRIBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AFRIBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AFRIBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AFRIBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AFRIBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AFRIBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AFRIBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AFRIBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AFRIBOOK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MarketplaceConfig carries the financial knobs of the settlement core.
type MarketplaceConfig struct {
	CommissionRate string `envconfig:"AFRIBOOK_COMMISSION_RATE" default:"0.05"`
	DeliveryFee    int64  `envconfig:"AFRIBOOK_DELIVERY_FEE" default:"1500"`
	Currency       string `envconfig:"AFRIBOOK_CURRENCY" default:"XOF"`
	PlatformUserID string `envconfig:"AFRIBOOK_PLATFORM_USER_ID" required:"true"`
}

// Rate returns the commission rate as a decimal.
func (m MarketplaceConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(m.CommissionRate)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (m MarketplaceConfig) validate() error {
	rate, err := decimal.NewFromString(m.CommissionRate)
	if err != nil {
		return fmt.Errorf("invalid commission rate %q: %w", m.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate %q outside [0,1]", m.CommissionRate)
	}
	if m.DeliveryFee < 0 {
		return fmt.Errorf("delivery fee must be non-negative")
	}
	return nil
}

type MTNConfig struct {
	BaseURL         string        `envconfig:"AFRIBOOK_MTN_BASE_URL" default:"https://sandbox.momodeveloper.mtn.com"`
	SubscriptionKey string        `envconfig:"AFRIBOOK_MTN_SUBSCRIPTION_KEY"`
	APIUser         string        `envconfig:"AFRIBOOK_MTN_API_USER"`
	APIKey          string        `envconfig:"AFRIBOOK_MTN_API_KEY"`
	TargetEnv       string        `envconfig:"AFRIBOOK_MTN_TARGET_ENV" default:"sandbox"`
	Timeout         time.Duration `envconfig:"AFRIBOOK_MTN_TIMEOUT" default:"15s"`
}

type MoovConfig struct {
	BaseURL    string        `envconfig:"AFRIBOOK_MOOV_BASE_URL" default:"https://api.moov-africa.bj"`
	MerchantID string        `envconfig:"AFRIBOOK_MOOV_MERCHANT_ID"`
	APIToken   string        `envconfig:"AFRIBOOK_MOOV_API_TOKEN"`
	Timeout    time.Duration `envconfig:"AFRIBOOK_MOOV_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AFRIBOOK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AFRIBOOK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
