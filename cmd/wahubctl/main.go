package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/lock"
	"github.com/matheus3301/wahub/internal/paths"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	configPath string
	apiURL     string
	jsonOut    bool
)

func main() {
	root := &cobra.Command{
		Use:           "wahubctl",
		Short:         "Control a running wahub daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", paths.ConfigPath(), "path to config.toml")
	root.PersistentFlags().StringVar(&apiURL, "api", "", "HTTP API base URL (default derived from http.listen)")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")

	root.AddCommand(statusCmd())
	root.AddCommand(listCmd())
	root.AddCommand(createCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(cleanCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func apiClient() (*Client, error) {
	if apiURL != "" {
		return NewClient(apiURL), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	addr := cfg.HTTP.Listen
	// A running daemon records the address it actually bound.
	if owner, err := lock.ReadOwner(cfg.Layout().LockPath()); err == nil && owner.HTTP != "" {
		addr = owner.HTTP
	}
	return NewClient("http://" + config.DialAddr(addr)), nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [instance]",
		Short: "Check daemon health, or one instance's connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := grpc.NewClient(
				"unix://"+cfg.SocketPath(),
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			)
			if err != nil {
				return fmt.Errorf("dial daemon: %w", err)
			}
			defer func() { _ = conn.Close() }()

			service := ""
			if len(args) == 1 {
				service = "instance:" + args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", cfg.SocketPath(), err)
			}
			if jsonOut {
				return outputJSON(map[string]string{"service": service, "status": resp.Status.String()})
			}
			name := "daemon"
			if service != "" {
				name = args[0]
			}
			fmt.Printf("%s: %s\n", name, resp.Status)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored instances with counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			list, err := c.ListInstances(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No instances.")
				return nil
			}
			fmt.Printf("%-20s %-13s %-24s %8s %6s %8s\n", "ID", "STATUS", "USER", "CONTACTS", "CHATS", "MESSAGES")
			for _, inst := range list {
				status := inst.Status
				if inst.Active {
					status += "*"
				}
				fmt.Printf("%-20s %-13s %-24s %8d %6d %8d\n",
					inst.ID, status, inst.UserName, inst.ContactsCount, inst.ChatsCount, inst.MessagesCount)
			}
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <instance>",
		Short: "Create and start an instance; scan its QR in wahubtui or a web client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			if err := c.CreateInstance(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("instance %s created\n", args[0])
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance>",
		Short: "Log out and permanently delete an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			if err := c.DeleteInstance(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("instance %s deleted\n", args[0])
			return nil
		},
	}
}

func cleanCmd() *cobra.Command {
	var media bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove all credentials and the app database (daemon must be stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			removed, err := clean(cfg, media)
			if err != nil {
				return err
			}
			for _, p := range removed {
				fmt.Printf("removed %s\n", p)
			}
			if len(removed) == 0 {
				fmt.Println("Nothing to clean.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&media, "media", false, "also remove downloaded media")
	return cmd
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
