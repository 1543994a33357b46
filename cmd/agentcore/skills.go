package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
)

func buildSkillsCmd() *cobra.Command {
	var configPath string
	var tag string

	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Inspect the skill repository",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List skills, optionally filtered by tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			repo, err := skillrepo.New(cfg.Skills.Dir)
			if err != nil {
				return fmt.Errorf("skill repository: %w", err)
			}
			defer repo.Close()

			skills := repo.List(tag)
			if len(skills) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no skills found")
				return nil
			}
			for _, skill := range skills {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-28s %s\n", skill.ID, skill.Name, skill.Preview())
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&tag, "tag", "", "filter by tag")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults are used if unset)")
	cmd.AddCommand(listCmd)
	return cmd
}
