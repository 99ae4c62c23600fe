package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv       string `mapstructure:"APP_ENV"`
	AppName      string `mapstructure:"APP_NAME"`
	AppVersion   string `mapstructure:"APP_VERSION"`
	AppNamespace string `mapstructure:"APP_NAMESPACE"`
	TLS          struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr           string        `mapstructure:"ADDR"`
		ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout    time.Duration `mapstructure:"IDLE_TIMEOUT"`
		UseUnixSocket  bool          `mapstructure:"USE_UNIX_SOCKET"`
		UnixSocketPath string        `mapstructure:"UNIX_SOCKET_PATH"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Auth struct {
		JWTSecret string `mapstructure:"JWT_SECRET"`
	} `mapstructure:"AUTH"`
	AccessControl struct {
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Midtrans struct {
		ServerKey   string `mapstructure:"SERVER_KEY"`
		Environment string `mapstructure:"ENVIRONMENT"`
	} `mapstructure:"MIDTRANS"`
	Payout Payout `mapstructure:"PAYOUT"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
}

// Payout holds the fee schedule applied to payout requests. Rates are fractions, e.g. 0.05.
type Payout struct {
	PlatformFeeRate    string `mapstructure:"PLATFORM_FEE_RATE"`
	ProcessingFeeRate  string `mapstructure:"PROCESSING_FEE_RATE"`
	ProcessingFeeFixed string `mapstructure:"PROCESSING_FEE_FIXED"`
	MinimumNet         string `mapstructure:"MINIMUM_NET"`
}

type FeeSchedule struct {
	PlatformFeeRate    decimal.Decimal
	ProcessingFeeRate  decimal.Decimal
	ProcessingFeeFixed decimal.Decimal
	MinimumNet         decimal.Decimal
}

// DefaultFeeSchedule is 5% platform fee, 2.9% + 0.30 processing and a 1.00 minimum net payout.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PlatformFeeRate:    decimal.RequireFromString("0.05"),
		ProcessingFeeRate:  decimal.RequireFromString("0.029"),
		ProcessingFeeFixed: decimal.RequireFromString("0.30"),
		MinimumNet:         decimal.RequireFromString("1.00"),
	}
}

// Fees parses the configured schedule, falling back to defaults for blank or invalid values.
func (p Payout) Fees() FeeSchedule {
	fees := DefaultFeeSchedule()
	parse := func(raw string, dst *decimal.Decimal, key string) {
		if raw == "" {
			return
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			zap.L().Warn("invalid payout config, using default", zap.String("key", key), zap.String("value", raw))
			return
		}
		*dst = v
	}

	parse(p.PlatformFeeRate, &fees.PlatformFeeRate, "PLATFORM_FEE_RATE")
	parse(p.ProcessingFeeRate, &fees.ProcessingFeeRate, "PROCESSING_FEE_RATE")
	parse(p.ProcessingFeeFixed, &fees.ProcessingFeeFixed, "PROCESSING_FEE_FIXED")
	parse(p.MinimumNet, &fees.MinimumNet, "MINIMUM_NET")
	return fees
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// setDefaults keeps a bare config.yaml usable for local development.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "bringitback")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
	v.SetDefault("MIDTRANS.ENVIRONMENT", "sandbox")

	defaults := DefaultFeeSchedule()
	v.SetDefault("PAYOUT.PLATFORM_FEE_RATE", defaults.PlatformFeeRate.String())
	v.SetDefault("PAYOUT.PROCESSING_FEE_RATE", defaults.ProcessingFeeRate.String())
	v.SetDefault("PAYOUT.PROCESSING_FEE_FIXED", defaults.ProcessingFeeFixed.StringFixed(2))
	v.SetDefault("PAYOUT.MINIMUM_NET", defaults.MinimumNet.StringFixed(2))
}

func LoadConfig(p Params) *Config {
	setDefaults(config)
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to decode config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		applySecrets(p.Vault, &cfg)
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("invalid remote config provider", zap.String("provider", backend), zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.String("addr", backendAddr), zap.String("path", backendPath), zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to decode remote config", zap.Error(err))
		os.Exit(1)
	}
	applySecrets(p.Vault, &cfg)
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			// currently, only tested with etcd support
			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				continue
			}
			applySecrets(p.Vault, &newcfg)
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}

// Current returns the latest remote config snapshot, nil when loaded from file.
func Current() *Config {
	if cfg, ok := configHolder.Load().(*Config); ok {
		return cfg
	}
	return nil
}

func applySecrets(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	set := func(dst *string, key string) {
		if val := get(key); val != "" {
			*dst = val
		}
	}

	set(&cfg.Database.User, "database_user")
	set(&cfg.Database.Password, "database_password")
	set(&cfg.Redis.Password, "redis_password")
	set(&cfg.Auth.JWTSecret, "jwt_secret")
	set(&cfg.Midtrans.ServerKey, "midtrans_server_key")
	set(&cfg.Flagsmith.ApiKey, "flagsmith_api_key")
}
