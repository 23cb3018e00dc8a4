package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/matheus3301/hive/internal/admin"
	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/config"
	"github.com/matheus3301/hive/internal/lock"
	"github.com/spf13/cobra"
)

type globals struct {
	configPath string
	socket     string
	jsonOut    bool
	timeout    time.Duration
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "hivectl",
		Short:         "Operate a running hived over its admin socket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultPath(), "path to hived.toml")
	rootCmd.PersistentFlags().StringVar(&g.socket, "socket", "", "admin socket (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "RPC timeout")

	rootCmd.AddCommand(
		createStatusCmd(g),
		createOnlineCmd(g),
		createKickCmd(g),
		createTokenCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.socket != "" {
		cfg.Admin.SocketPath = g.socket
	}
	return cfg, nil
}

// dial connects to the daemon and returns a context bounded by --timeout.
func (g *globals) dial() (*admin.Client, *config.Config, context.Context, context.CancelFunc, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	c, err := admin.Dial(cfg.Admin.SocketPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	return c, cfg, ctx, cancel, nil
}

func createStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, ctx, cancel, err := g.dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer func() { _ = c.Close() }()

			st, err := c.Status(ctx)
			if err != nil {
				if pid := lock.Holder(filepath.Dir(cfg.Store.Path)); pid > 0 {
					return fmt.Errorf("hived (PID %d) not answering on %s: %w", pid, cfg.Admin.SocketPath, err)
				}
				return fmt.Errorf("hived not running (%s): %w", cfg.Admin.SocketPath, err)
			}
			if g.jsonOut {
				return outputJSON(st)
			}
			color.Green("hived on %s is up", st.Node)
			fmt.Printf("Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Truncate(time.Second))
			fmt.Printf("Connections:   %d (%d away)\n", st.Connections, st.Away)
			fmt.Printf("Rooms:         %d\n", st.Rooms)
			fmt.Printf("Users:         %d\n", st.Users)
			fmt.Printf("Conversations: %d\n", st.Conversations)
			fmt.Printf("Messages:      %d\n", st.Messages)
			fmt.Printf("Notifications: %d\n", st.Notifications)
			fmt.Printf("Outbox:        queued=%d sent=%d failed=%d\n", st.Outbox["queued"], st.Outbox["sent"], st.Outbox["failed"])
			if st.BusDropped > 0 {
				color.Yellow("Bus dropped:   %d", st.BusDropped)
			}
			return nil
		},
	}
}

func createOnlineCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List connected users",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, ctx, cancel, err := g.dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer func() { _ = c.Close() }()

			users, err := c.ListOnline(ctx)
			if err != nil {
				return err
			}
			if g.jsonOut {
				return outputJSON(users)
			}
			if len(users) == 0 {
				fmt.Println("nobody online")
				return nil
			}
			away := color.New(color.FgYellow).SprintFunc()
			online := color.New(color.FgGreen).SprintFunc()
			for _, u := range users {
				state := online(u.Presence)
				if u.Presence == "away" {
					state = away(u.Presence)
				}
				fmt.Printf("%-36s %s\n", u.UserID, state)
			}
			return nil
		},
	}
}

func createKickCmd(g *globals) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "kick <user-id>",
		Short: "Force-disconnect a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, ctx, cancel, err := g.dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer func() { _ = c.Close() }()

			kicked, err := c.Kick(ctx, args[0], reason)
			if err != nil {
				return err
			}
			if g.jsonOut {
				return outputJSON(map[string]bool{"kicked": kicked})
			}
			if kicked {
				color.Green("kicked %s", args[0])
			} else {
				color.Yellow("%s is not connected", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "kicked", "reason sent in forceDisconnect")
	return cmd
}

// createTokenCmd mints a bearer token with the daemon's secret, for local
// testing of websocket and REST clients.
func createTokenCmd(g *globals) *cobra.Command {
	var handle string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set in %s", g.configPath)
			}
			tok, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(args[0], handle, ttl)
			if err != nil {
				return err
			}
			if g.jsonOut {
				return outputJSON(map[string]string{"token": tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "handle claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
