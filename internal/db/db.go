package db

import (
	"log"
	"time"

	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the MySQL pool and exits the process if the database is unreachable.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	return gdb
}

// Migrate creates the tables the worker writes to. Production schemas are owned by the API service;
// this exists for local setups and tests.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&chat.Chat{}, &chat.Message{})
}

// Closer adapts a gorm handle to io.Closer.
type Closer struct {
	DB *gorm.DB
}

func (c Closer) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
