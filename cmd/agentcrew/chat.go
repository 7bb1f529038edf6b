package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/BaSui01/agentcrew"
	"github.com/BaSui01/agentcrew/chat"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 💬 chat 命令：交互式函数调用聊天
// =============================================================================

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	sessionID := fs.String("session", "", "Resume a session (Redis history backend)")
	if err := fs.Parse(args); err != nil {
		return err
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

	fmt.Printf("Chat with %d tools. Type \"reset\" to clear history, \"exit\" to quit.\n", len(app.Tools.List()))
	return chatLoop(ctx, os.Stdin, os.Stdout, app.Chat.Session(*sessionID))
}

// chatLoop 逐行读取输入直到 exit 或 EOF；单轮失败只打印错误，不结束会话
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, session *chat.Session) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "User > ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			if err := session.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error (%s): %v\n", types.GetErrorCode(err), err)
			continue
		}
		for _, call := range reply.ToolCalls {
			fmt.Fprintf(out, "  [tool] %s(%s)\n", call.Name, call.Arguments)
		}
		fmt.Fprintf(out, "Assistant > %s\n", reply.Content)
	}
}
