// llmrelay is a small CLI for exercising configured backends: send a
// prompt, stream a response, or validate every backend's connectivity.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/jhalvorsen/llmrelay/config"
	"github.com/jhalvorsen/llmrelay/conversation"
	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/jhalvorsen/llmrelay/llm/backends"
	relaylogger "github.com/jhalvorsen/llmrelay/logger"
)

func main() {
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		backendID  = flag.String("backend", "", "Backend id to use (default from config)")
		prompt     = flag.String("prompt", "", "Prompt to send")
		system     = flag.String("system", "", "Optional system message")
		stream     = flag.Bool("stream", false, "Stream the response instead of waiting for it")
		validate   = flag.Bool("validate", false, "Validate connectivity for all configured backends")
		timeout    = flag.Duration("timeout", 2*time.Minute, "Overall timeout for the operation")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		fmt.Fprintf(os.Stderr, "Error: --logfile and --pretty are mutually exclusive\n")
		os.Exit(1)
	}

	logger, err := relaylogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	bridge := llm.NewBridge(backends.NewClient, cfg.RetryPolicy(), logger)

	switch {
	case *validate:
		os.Exit(runValidate(ctx, bridge, cfg))
	case *prompt != "":
		os.Exit(runPrompt(ctx, bridge, cfg, logger, promptOptions{
			backendID: *backendID,
			system:    *system,
			prompt:    *prompt,
			stream:    *stream,
		}))
	default:
		fmt.Fprintf(os.Stderr, "Nothing to do: pass -prompt or -validate\n")
		flag.Usage()
		os.Exit(2)
	}
}

// runValidate checks every configured backend and prints a result table.
func runValidate(ctx context.Context, bridge *llm.Bridge, cfg *config.Config) int {
	ids := cfg.BackendIDs()
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "No backends configured\n")
		return 1
	}

	failures := 0
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		backendCfg, err := cfg.Backend(id)
		if err != nil {
			rows = append(rows, []string{id, "-", "error", err.Error()})
			failures++
			continue
		}

		start := time.Now()
		err = bridge.ValidateConnection(ctx, backendCfg)
		elapsed := time.Since(start).Round(time.Millisecond)

		status, detail := "ok", ""
		if err != nil {
			failures++
			status = "failed"
			detail = err.Error()
			if chatErr := llm.AsError(err); chatErr != nil && chatErr.SuggestedFix != "" {
				detail = fmt.Sprintf("%s (%s)", chatErr.Message, chatErr.SuggestedFix)
			}
		}
		rows = append(rows, []string{id, backendCfg.Provider, status, detail, elapsed.String()})
	}

	fmt.Println(renderTable(
		[]string{"Backend", "Provider", "Status", "Detail", "Time"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	if failures > 0 {
		return 1
	}
	return 0
}

type promptOptions struct {
	backendID string
	system    string
	prompt    string
	stream    bool
}

// runPrompt sends one prompt through a conversation context and prints
// the response.
func runPrompt(ctx context.Context, bridge *llm.Bridge, cfg *config.Config, logger zerolog.Logger, opts promptOptions) int {
	backendCfg, err := cfg.Backend(opts.backendID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	convo := conversation.New(cfg.ConversationOptions(), logger)
	if opts.system != "" {
		convo.AddMessage(llm.NewTextMessage(llm.RoleSystem, opts.system))
	}
	convo.AddMessage(llm.NewTextMessage(llm.RoleUser, opts.prompt))

	req := &llm.Request{Messages: convo.Messages()}

	if opts.stream {
		return streamResponse(ctx, bridge, req, backendCfg)
	}

	resp, err := bridge.Send(ctx, req, backendCfg)
	if err != nil {
		printError(err)
		return 1
	}
	fmt.Println(resp.Content)
	for _, tc := range resp.ToolCalls {
		fmt.Printf("[tool call] %s %v\n", tc.Name, tc.Arguments)
	}
	return 0
}

func streamResponse(ctx context.Context, bridge *llm.Bridge, req *llm.Request, backendCfg llm.BackendConfig) int {
	s, err := bridge.StreamSend(ctx, req, backendCfg)
	if err != nil {
		printError(err)
		return 1
	}
	defer s.Close()

	for s.Next() {
		event := s.Event()
		if event == nil || event.Delta == nil {
			continue
		}
		switch event.Delta.Type {
		case llm.StreamDeltaTypeText:
			fmt.Print(event.Delta.Text)
		case llm.StreamDeltaTypeToolCall:
			fmt.Printf("\n[tool call] %s\n", event.Delta.ToolCall.Name)
		}
	}
	fmt.Println()
	if err := s.Err(); err != nil {
		printError(err)
		return 1
	}
	return 0
}

func printError(err error) {
	chatErr := llm.AsError(err)
	if chatErr == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error (%s): %s\n", chatErr.Kind, chatErr.Message)
	if chatErr.SuggestedFix != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", chatErr.SuggestedFix)
	}
}
