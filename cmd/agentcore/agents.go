package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/config"
)

func buildAgentsCmd() *cobra.Command {
	var configPath string
	var tag string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect the agent repository",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List agents, optionally filtered by tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			repo, err := agentrepo.New(cfg.Agents.Dir)
			if err != nil {
				return fmt.Errorf("agent repository: %w", err)
			}
			defer repo.Close()

			agents := repo.List(tag)
			if len(agents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no agents found")
				return nil
			}
			for _, agent := range agents {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-28s %s\n", agent.ID, agent.Name, agent.Description)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&tag, "tag", "", "filter by tag")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults are used if unset)")
	cmd.AddCommand(listCmd)
	return cmd
}
