package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

const (
	// Порт по умолчанию (непривилегированный).
	defaultServerPort = "8443"

	// Переменные окружения.
	envServerPort    = "SERVER_PORT"
	envTLSCertFile   = "TLS_CERT_FILE"
	envTLSKeyFile    = "TLS_KEY_FILE"
	envDatabaseDSN   = "DATABASE_DSN"
	envAMQPURL       = "AMQP_URL"
	envAMQPExchange  = "AMQP_EXCHANGE"
	envMinioEndpoint = "MINIO_ENDPOINT"
	envMinioUser     = "MINIO_USER"
	envMinioPassword = "MINIO_PASSWORD"
	envMinioBucket   = "MINIO_BUCKET"

	defaultMinioBucket = "multivault-ledgers"
)

// config хранит конфигурацию сервера.
type config struct {
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string // пусто - хранилище данных в памяти

	AMQPURL      string // пусто - события только внутрипроцессным подписчикам
	AMQPExchange string

	MinioEndpoint string // пусто - архивация журнала отключена
	MinioUser     string
	MinioPassword string
	MinioBucket   string

	RequestTTL    time.Duration // срок действия заявки на вывод
	SweepInterval time.Duration // период обхода просроченных заявок
}

// parseFlags разбирает флаги и переменные окружения, возвращает config.
// Флаг имеет приоритет над переменной окружения.
func parseFlags() (*config, error) {
	cfg := &config{}

	flag.StringVar(&cfg.Port, "port", "",
		fmt.Sprintf("Порт для запуска сервера (env: %s, default: %s)", envServerPort, defaultServerPort))
	flag.StringVar(&cfg.CertFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата (env: %s); вместе с ключом включает HTTPS", envTLSCertFile))
	flag.StringVar(&cfg.KeyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа (env: %s)", envTLSKeyFile))
	flag.StringVar(&cfg.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("Строка подключения к PostgreSQL (env: %s); пусто - хранилище в памяти", envDatabaseDSN))
	flag.StringVar(&cfg.AMQPURL, "amqp-url", "",
		fmt.Sprintf("Адрес брокера AMQP для публикации событий (env: %s); пусто - отключено", envAMQPURL))
	flag.StringVar(&cfg.AMQPExchange, "amqp-exchange", "",
		fmt.Sprintf("Имя обменника AMQP (env: %s)", envAMQPExchange))
	flag.DurationVar(&cfg.RequestTTL, "request-ttl", 24*time.Hour,
		"Срок действия заявки на вывод средств")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", time.Second,
		"Период фонового обхода просроченных заявок")

	flag.Parse()

	// Применяем переменные окружения, если флаги не заданы
	applyEnv(&cfg.Port, envServerPort)
	if cfg.Port == "" {
		cfg.Port = defaultServerPort
	}
	applyEnv(&cfg.CertFile, envTLSCertFile)
	applyEnv(&cfg.KeyFile, envTLSKeyFile)
	applyEnv(&cfg.DatabaseDSN, envDatabaseDSN)
	applyEnv(&cfg.AMQPURL, envAMQPURL)
	applyEnv(&cfg.AMQPExchange, envAMQPExchange)

	// MinIO настраивается только через окружение (как в docker-compose).
	cfg.MinioEndpoint = os.Getenv(envMinioEndpoint)
	cfg.MinioUser = os.Getenv(envMinioUser)
	cfg.MinioPassword = os.Getenv(envMinioPassword)
	cfg.MinioBucket = os.Getenv(envMinioBucket)
	if cfg.MinioBucket == "" {
		cfg.MinioBucket = defaultMinioBucket
	}

	// TLS опционален, но сертификат и ключ идут только парой.
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, fmt.Errorf("параметры TLS задаются парой: cert-file (%s) и key-file (%s)",
			envTLSCertFile, envTLSKeyFile)
	}
	if cfg.RequestTTL <= 0 {
		return nil, fmt.Errorf("срок действия заявки должен быть положительным, получено %s", cfg.RequestTTL)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("период обхода должен быть положительным, получено %s", cfg.SweepInterval)
	}

	return cfg, nil
}

// applyEnv подставляет значение переменной окружения, если флаг не задан.
func applyEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if value, ok := os.LookupEnv(key); ok {
		*dst = value
	}
}
