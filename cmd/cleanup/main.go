// Copyright 2026 The Authrim Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cleanup removes expired sessions and spent authorization codes
// once and exits. Useful as a cron job next to the server's built-in
// cleanup loop.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/authrim/authrim/internal/config"
	"github.com/authrim/authrim/internal/observability/logger"
	"github.com/authrim/authrim/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Service.Name,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	sessions, err := postgres.NewSessionRepository(db).DeleteExpired(ctx)
	if err != nil {
		slog.Error("session cleanup failed", logger.Error(err))
		os.Exit(1)
	}
	codes, err := postgres.NewAuthCodeRepository(db).DeleteExpired(ctx)
	if err != nil {
		slog.Error("auth code cleanup failed", logger.Error(err))
		os.Exit(1)
	}

	slog.Info("cleanup finished",
		logger.String("component", "cleanup"),
		slog.Int64("sessions_removed", sessions),
		slog.Int64("codes_removed", codes),
	)
}
