package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  Postgres  `yaml:"postgres"`
	Kafka     Kafka     `yaml:"kafka"`
	Redis     Redis     `yaml:"redis"`
	Consul    Consul    `yaml:"consul"`
	Stripe    Stripe    `yaml:"stripe"`
	SMTP      SMTP      `yaml:"smtp"`
	Scheduler Scheduler `yaml:"scheduler"`
	Notify    Notify    `yaml:"notify"`
}

type App struct {
	Name           string `yaml:"name"            env:"APP_NAME"          env-default:"lifecycle-service"`
	LogLevel       string `yaml:"log_level"       env:"APP_LOG_LEVEL"     env-default:"info"`
	EndpointPrefix string `yaml:"endpoint_prefix" env:"SERVICE_ENDPOINT_PREFIX" env-default:"/v1/orders"`
}

type HTTP struct {
	Port            int           `yaml:"port"             env:"HTTP_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type Postgres struct {
	DSN          string        `yaml:"dsn"            env:"POSTGRES_DSN"            env-required:"true"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"POSTGRES_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"POSTGRES_MAX_IDLE_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"  env:"POSTGRES_CONN_LIFETIME"  env-default:"30m"`
}

type Kafka struct {
	Brokers       string `yaml:"brokers"        env:"KAFKA_BROKERS"        env-default:"localhost:9092"`
	ConsumerGroup string `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"lifecycle-service"`
}

type Redis struct {
	Addr     string        `yaml:"addr"      env:"REDIS_ADDR"      env-default:"localhost:6379"`
	Password string        `yaml:"password"  env:"REDIS_PASSWORD"  env-default:""`
	DB       int           `yaml:"db"        env:"REDIS_DB"        env-default:"0"`
	EventTTL time.Duration `yaml:"event_ttl" env:"REDIS_EVENT_TTL" env-default:"72h"`
}

type Consul struct {
	Address     string `yaml:"address"      env:"CONSUL_ADDRESS"      env-default:""`
	ServiceName string `yaml:"service_name" env:"CONSUL_SERVICE_NAME" env-default:"orders"`
	ServiceHost string `yaml:"service_host" env:"CONSUL_SERVICE_HOST" env-default:"localhost"`
}

type Stripe struct {
	SecretKey     string `yaml:"secret_key"     env:"STRIPE_TEST_KEY"       env-required:"true"`
	WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET" env-required:"true"`
	Currency      string `yaml:"currency"       env:"STRIPE_CURRENCY"       env-default:"inr"`
}

type SMTP struct {
	Host     string `yaml:"host"     env:"SMTP_HOST"     env-default:"smtp.mailtrap.io"`
	Port     string `yaml:"port"     env:"SMTP_PORT"     env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from"     env:"SMTP_FROM"     env-default:"no-reply@example.com"`
}

type Scheduler struct {
	AbandonedCartAfter    time.Duration `yaml:"abandoned_cart_after"    env:"SCHED_ABANDONED_CART_AFTER"    env-default:"24h"`
	AbandonedCartInterval time.Duration `yaml:"abandoned_cart_interval" env:"SCHED_ABANDONED_CART_INTERVAL" env-default:"1h"`
	AutoDeliverAfter      time.Duration `yaml:"auto_deliver_after"      env:"SCHED_AUTO_DELIVER_AFTER"      env-default:"168h"`
	AutoDeliverInterval   time.Duration `yaml:"auto_deliver_interval"   env:"SCHED_AUTO_DELIVER_INTERVAL"   env-default:"1h"`
	ReviewReminderMinDays int           `yaml:"review_reminder_min_days" env:"SCHED_REVIEW_MIN_DAYS"        env-default:"3"`
	ReviewReminderMaxDays int           `yaml:"review_reminder_max_days" env:"SCHED_REVIEW_MAX_DAYS"        env-default:"30"`
	ReviewInterval        time.Duration `yaml:"review_interval"         env:"SCHED_REVIEW_INTERVAL"         env-default:"24h"`
	LowStockThreshold     int           `yaml:"low_stock_threshold"     env:"SCHED_LOW_STOCK_THRESHOLD"     env-default:"5"`
	LowStockInterval      time.Duration `yaml:"low_stock_interval"      env:"SCHED_LOW_STOCK_INTERVAL"      env-default:"6h"`
	DailyReportInterval   time.Duration `yaml:"daily_report_interval"   env:"SCHED_DAILY_REPORT_INTERVAL"   env-default:"24h"`
}

type Notify struct {
	Workers     int           `yaml:"workers"      env:"NOTIFY_WORKERS"      env-default:"4"`
	QueueSize   int           `yaml:"queue_size"   env:"NOTIFY_QUEUE_SIZE"   env-default:"256"`
	SendTimeout time.Duration `yaml:"send_timeout" env:"NOTIFY_SEND_TIMEOUT" env-default:"10s"`
	AdminEmail  string        `yaml:"admin_email"  env:"NOTIFY_ADMIN_EMAIL"  env-default:"ops@example.com"`
}

// MustLoad reads the optional yaml config at path, overlays environment
// variables, and panics on anything unusable. Startup config is not a
// recoverable failure.
func MustLoad(path string) *Config {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			panic(fmt.Sprintf("config file does not exist: %s", path))
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			panic(fmt.Sprintf("reading config %s: %v", path, err))
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic(fmt.Sprintf("reading config from env: %v", err))
	}
	return &cfg
}
