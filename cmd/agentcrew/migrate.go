package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage()
		return fmt.Errorf("missing migrate subcommand")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "up":
		return withMigrator("up", rest, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunUp(ctx)
		})
	case "down":
		return withMigrator("down", rest, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunDown(ctx)
		})
	case "steps":
		return withMigrator("steps", rest, func(ctx context.Context, cli *migration.CLI, pos []string) error {
			n, err := intArg(pos, "steps <n>")
			if err != nil {
				return err
			}
			return cli.RunSteps(ctx, n)
		})
	case "force":
		return withMigrator("force", rest, func(ctx context.Context, cli *migration.CLI, pos []string) error {
			v, err := intArg(pos, "force <version>")
			if err != nil {
				return err
			}
			return cli.RunForce(ctx, v)
		})
	case "status":
		return withMigrator("status", rest, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		return withMigrator("version", rest, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunVersion(ctx)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
		return nil
	default:
		printMigrateUsage()
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}
}

// withMigrator 解析公共参数，构造迁移器并执行 fn
func withMigrator(name string, args []string, fn func(ctx context.Context, cli *migration.CLI, positional []string) error) error {
	// 位置参数写在选项之前，负数步数不会被当成选项
	var positional []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "--") {
		positional = append(positional, args[0])
		args = args[1:]
	}

	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		migrator *migration.DefaultMigrator
		logger   = zap.NewNop()
		err      error
	)
	if *dbType != "" && *dbURL != "" {
		migrator, err = migration.NewMigratorFromURL(*dbType, *dbURL, logger)
	} else {
		cfg, _, loadErr := loadConfig(*configPath)
		if loadErr != nil {
			return loadErr
		}
		logger = cliLogger(cfg.Log)
		if *dbType != "" {
			cfg.Database.Driver = *dbType
		}
		migrator, err = migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	return fn(context.Background(), migration.NewCLI(migrator), append(positional, fs.Args()...))
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: agentcrew migrate %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[0])
	}
	return n, nil
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  agentcrew migrate <subcommand> [options] [args]

Subcommands:
  up              Apply all pending migrations
  down            Rollback the last migration
  steps <n>       Apply (n > 0) or roll back (n < 0) n migrations
  force <version> Force set migration version (clears a dirty state)
  status          Show migration status
  version         Show current migration version

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql (default: from config; sqlite uses auto-migrate)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentcrew migrate up
  agentcrew migrate status --config /etc/agentcrew/config.yaml
  agentcrew migrate steps -1
  agentcrew migrate force 1 --db-type mysql --db-url "user:pass@tcp(localhost:3306)/agentcrew"`)
}
