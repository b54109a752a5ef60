// ia is the terminal surface for InstantAgent: create agents, list
// them, and chat without the web frontend.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/domain"
	"github.com/averlon/instantagent/internal/registry"
	"github.com/averlon/instantagent/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:           "ia",
		Short:         "instantagent — spin up an AI agent and chat with it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("user", "", "identity to act as (defaults to $IA_USER)")

	root.AddCommand(
		createCmd(),
		listCmd(),
		deleteCmd(),
		chatCmd(),
		modelsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is everything a CLI command needs: a registry already bound to
// the caller's identity, plus the store handle to close on exit.
type env struct {
	cfg  *config.Config
	repo store.Repository
	reg  *registry.Registry
}

func (e *env) close() {
	if e.repo != nil {
		_ = e.repo.Close()
	}
}

func setup(cmd *cobra.Command) (*env, error) {
	_ = godotenv.Load()

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv("IA_USER")
	}
	if user = strings.TrimSpace(user); user == "" {
		return nil, fmt.Errorf("no identity: pass --user or set IA_USER")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Keep CLI noise out of the conversation; warnings and up only.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := backend.NewClient(cfg.BackendURL, logger)
	classifier := chat.NewClassifier(client, cfg.Classifier, logger)
	delivery := chat.NewDelivery(client, cfg.Delivery, logger)
	reg := registry.New(repo, client, classifier, delivery, cfg.Naming, logger)

	if err := reg.SwitchUser(cmd.Context(), user); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return &env{cfg: cfg, repo: repo, reg: reg}, nil
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <goal>",
		Short: "Create a new agent for a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			model, _ := cmd.Flags().GetString("model")
			specialization, _ := cmd.Flags().GetString("specialization")
			toolsFlag, _ := cmd.Flags().GetStringSlice("tools")

			agent, err := e.reg.CreateAgent(cmd.Context(), args[0], model, specialization, toolsFlag)
			if err != nil {
				return err
			}
			fmt.Printf("created %s  %s  (%s)\n", agent.ID, agent.DisplayName, agent.ModelName)
			return nil
		},
	}
	cmd.Flags().String("model", "mistralai/Mixtral-8x7B-Instruct-v0.1", "backend model ID")
	cmd.Flags().String("specialization", "", "optional specialization note")
	cmd.Flags().StringSlice("tools", nil, "tools to equip (flights, prices, maps)")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			agents := e.reg.Agents()
			if len(agents) == 0 {
				fmt.Println("no agents yet; run: ia create \"help me plan a trip\"")
				return nil
			}
			printAgents(os.Stdout, agents)
			return nil
		},
	}
}

func printAgents(w io.Writer, agents []*domain.Agent) {
	for _, a := range agents {
		fmt.Fprintf(w, "%s  %-30s  %s\n", a.ID, a.DisplayName, a.ModelName)
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent and its conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.reg.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range domain.KnownModels() {
				fmt.Printf("%-45s %s\n", m.ID, m.Name)
			}
			return nil
		},
	}
}
