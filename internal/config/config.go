package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDSN         string
	DBAutoMigrate bool

	RedisURL string

	// rabbitMQ
	RabbitURL        string
	RabbitQueue      string
	RabbitPrefetch   int
	RabbitDeadLetter bool

	FlushInterval time.Duration

	HTTPAddr string
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/chat_system?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			"app", "apppass", "127.0.0.1", "3306", "chat_system",
		)
	}

	// redis config
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = fmt.Sprintf("redis://%s:%s/0",
			envOr("REDIS_HOST", "localhost"),
			envOr("REDIS_PORT", "6379"),
		)
	}

	// rabbitMQ config
	rabbitURL := os.Getenv("RABBIT_URL")
	if rabbitURL == "" {
		rabbitURL = rabbitURLFromParts(
			envOr("RABBITMQ_HOST", "rabbitmq"),
			envOr("RABBITMQ_PORT", "5672"),
			envOr("RABBITMQ_USERNAME", "guest"),
			envOr("RABBITMQ_PASSWORD", "guest"),
			envOr("RABBITMQ_VHOST", "/"),
		)
	}
	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chats-queue"
	}

	prefetch := 1000
	if v := os.Getenv("RABBIT_PREFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			prefetch = n
		}
	}

	flushSeconds := 5
	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			flushSeconds = n
		}
	}

	httpAddr, ok := os.LookupEnv("HTTP_ADDR")
	if !ok {
		httpAddr = ":8081"
	}

	return Config{
		DBDSN:         dsn,
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE"),

		RedisURL: redisURL,

		RabbitURL:        rabbitURL,
		RabbitQueue:      rabbitQueue,
		RabbitPrefetch:   prefetch,
		RabbitDeadLetter: envBool("RABBIT_DEAD_LETTER"),

		FlushInterval: time.Duration(flushSeconds) * time.Second,

		HTTPAddr: strings.TrimSpace(httpAddr),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

// rabbitURLFromParts builds an amqp URL. The default vhost "/" is an empty path.
func rabbitURLFromParts(host, port, user, pass, vhost string) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
	}
	if vhost == "/" {
		return u.String() + "/"
	}
	return u.String() + "/" + url.PathEscape(strings.TrimPrefix(vhost, "/"))
}
