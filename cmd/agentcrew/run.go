package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew"
	"github.com/BaSui01/agentcrew/agent/conversation"
	"github.com/BaSui01/agentcrew/agent/persistence"
	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🤝 run 命令：一次性三方对话
// =============================================================================

func runConversation(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	maxIterations := fs.Int("max-iterations", 0, "Override multi_agent.max_iterations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if input == "" {
		return fmt.Errorf(`usage: agentcrew run [--config path] [--max-iterations n] "<request>"`)
	}

	cfg, err := loadCLIConfig(*configPath)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := agentcrew.New(ctx, cfg, logger, agentcrew.Options{Version: Version, SkipTelemetry: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	res, runErr := runAndPrint(ctx, os.Stdout, app.Team, input, *maxIterations)
	if res != nil && app.Runs != nil && res.Iterations > 0 {
		if err := app.Runs.SaveRun(context.Background(), persistence.RecordFromResult(res)); err != nil {
			logger.Warn("failed to persist run", zap.String("run_id", res.ID), zap.Error(err))
		}
	}
	return runErr
}

// runAndPrint 运行对话，并在每条消息产生时输出 transcript 行
func runAndPrint(ctx context.Context, out io.Writer, team *conversation.Team, input string, maxIterations int) (*conversation.Result, error) {
	printMessage(out, types.NewUserMessage(input))
	res, err := team.Run(ctx, input,
		conversation.WithMaxIterations(maxIterations),
		conversation.WithObserver(func(msg types.Message, _ int) {
			printMessage(out, msg)
		}),
	)
	if res != nil {
		fmt.Fprintf(out, "\n-- finished: %s after %d iterations (%d tokens)\n", res.Reason, res.Iterations, res.Tokens)
	}
	return res, err
}

func printMessage(out io.Writer, msg types.Message) {
	author := msg.Author
	if author == "" {
		author = "*"
	}
	fmt.Fprintf(out, "# %s - %s: '%s'\n", msg.Role, author, msg.Content)
}

// loadCLIConfig 命令行模式额外要求 Azure 配置完整
func loadCLIConfig(configPath string) (*config.Config, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAzure(); err != nil {
		return nil, err
	}
	return cfg, nil
}
