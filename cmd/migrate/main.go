// Command migrate applies or inspects the subticket schema.
//
//	migrate [up|down|status|version]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/internal/migrate"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [up|down|status|version]")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	_ = godotenv.Load(".env")

	log := logger.NewLogger()
	if err := run(context.Background(), command); err != nil {
		log.Error("migrate failed", slog.String("command", command), logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	var dbCfg config.DatabaseConfig
	if err := env.Parse(&dbCfg); err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = dbCfg.DSN()
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	zl, err := logger.NewZap()
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	m := migrate.New(sqldb, zl)
	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
