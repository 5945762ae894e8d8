package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Pool задаёт размер пула соединений. FillSlot и UpdateScore держат
// строку под FOR UPDATE до конца транзакции, поэтому пул не должен быть
// меньше числа одновременных advancement'ов.
type Pool struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func DefaultPool() Pool {
	return Pool{
		MaxOpenConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Connect opens a postgres handle and pings it before returning.
func Connect(ctx context.Context, dsn string, pool Pool) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(pool.MaxOpenConns)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to ping database within %v: %w", pool.PingTimeout, err),
			conn.Close(),
		)
	}
	return conn, nil
}
