// ABOUTME: Entry point for the mother-observe CLI
// ABOUTME: Watches gateway events live and prints them with debug-mode filtering

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/jimpames/MOTHER/internal/broadcast"
	"github.com/jimpames/MOTHER/internal/client"
)

const banner = `
    ╭────────────────────────────────────╮
    │                                    │
    │   MOTHER observer                  │
    │   live gateway event stream        │
    │                                    │
    ╰────────────────────────────────────╯
`

// getConfigPath returns the path to the observer config file.
// Priority: MOTHER_OBSERVE_CONFIG env var > XDG_CONFIG_HOME/mother/observe.toml > ~/.config/mother/observe.toml
func getConfigPath() string {
	if envPath := os.Getenv("MOTHER_OBSERVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "observe.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mother", "observe.toml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level)

	color.New(color.FgCyan).Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    gateway: %s\n", cfg.Gateway.URL)
	if cfg.Display.Debug {
		color.New(color.FgYellow).Println("    debug mode: private traffic visible")
	}
	fmt.Println()

	c, err := client.Dial(ctx, cfg.WebsocketURL(), logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	printer := &eventPrinter{
		state:      c.State(),
		debug:      cfg.Display.Debug,
		timestamps: cfg.Display.Timestamps,
	}

	go func() {
		for event := range c.Events() {
			printer.print(event)
		}
	}()
	go func() {
		for reply := range c.Replies() {
			printer.printReply(reply)
		}
	}()

	return c.Run(ctx)
}

// eventPrinter renders pushed events for the terminal, honoring the
// client-side debug boundary for private conversation traffic.
type eventPrinter struct {
	state      *client.State
	debug      bool
	timestamps bool
}

func (p *eventPrinter) prefix(event *broadcast.Event) string {
	if !p.timestamps {
		return ""
	}
	return color.HiBlackString(event.Timestamp.Format("15:04:05") + " ")
}

func (p *eventPrinter) print(event *broadcast.Event) {
	switch event.Type {
	case broadcast.KindRosterUpdate:
		names := make([]string, 0, len(event.Agents))
		for _, a := range event.Agents {
			name := a.Name
			if a.VoiceEnabled {
				name += color.HiBlackString("(" + a.VoiceID + ")")
			}
			names = append(names, name)
		}
		fmt.Printf("%s%s %s\n", p.prefix(event), color.CyanString("roster"), strings.Join(names, ", "))

	case broadcast.KindVoiceUpdate:
		status := color.GreenString("ok")
		if event.Success != nil && !*event.Success {
			status = color.RedString("failed")
		}
		fmt.Printf("%s%s %s → %s [%s]\n", p.prefix(event), color.MagentaString("voice"), event.Agent, event.VoiceID, status)

	case broadcast.KindConversationUpdate:
		switch event.Status {
		case broadcast.StatusCreated:
			tag := ""
			if event.IsPrivate {
				tag = color.YellowString(" [private]")
			}
			fmt.Printf("%s%s %s started by %s%s\n", p.prefix(event), color.GreenString("conv+"), shortID(event.ConversationID), strings.Join(event.Participants, "+"), tag)
		case broadcast.StatusEnded:
			fmt.Printf("%s%s %s ended\n", p.prefix(event), color.RedString("conv-"), shortID(event.ConversationID))
		}

	case broadcast.KindDebugMessage:
		if !p.visible(event.Recipient) {
			return
		}
		fmt.Printf("%s%s [%s] %s: %s\n", p.prefix(event), color.BlueString("msg"), shortID(event.Recipient), event.Sender, event.Content)
	}
}

func (p *eventPrinter) printReply(reply *client.Reply) {
	switch reply.Type {
	case "error":
		fmt.Printf("%s %s: %s\n", color.RedString("error"), reply.Code, reply.Message)
	case "query_result":
		fmt.Printf("%s %s/%s voice=%s enabled=%t\n", color.GreenString("query"), reply.User, reply.Agent, reply.VoiceID, reply.VoiceEnabled)
	}
}

// visible applies the debug boundary using the local projection: private
// conversations (and conversations never announced to us) stay hidden
// unless debug mode is on.
func (p *eventPrinter) visible(conversationID string) bool {
	if p.debug {
		return true
	}
	for _, conv := range p.state.Conversations() {
		if conv.ID == conversationID {
			return !conv.Private
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func setupLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
