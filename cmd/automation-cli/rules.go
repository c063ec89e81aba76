package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/engine"
)

func newRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Create, inspect, and run automation rules",
	}
	cmd.PersistentFlags().String("principal", envOrDefault("AUTOMATION_CLI_PRINCIPAL", "cli"), "principal to act as (permission/audit subject)")
	cmd.AddCommand(newRuleCreateCmd())
	cmd.AddCommand(newRuleUpdateCmd())
	cmd.AddCommand(newRuleDeleteCmd())
	cmd.AddCommand(newRuleListCmd())
	cmd.AddCommand(newRuleExecuteCmd())
	cmd.AddCommand(newRuleValidateCmd())
	return cmd
}

func loadRuleFile(path string) (*rule.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, svcerrors.InvalidInput("file", err.Error())
	}
	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, svcerrors.InvalidInput("file", fmt.Sprintf("invalid rule JSON: %v", err))
	}
	return &r, nil
}

func newRuleCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, _ := cmd.Flags().GetString("principal")
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := loadRuleFile(file)
			if err != nil {
				return err
			}
			created, err := a.engine.CreateRule(principal, r)
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON rule definition (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newRuleUpdateCmd() *cobra.Command {
	var id, file string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a rule's definition (id stays immutable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, _ := cmd.Flags().GetString("principal")
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			patch, err := loadRuleFile(file)
			if err != nil {
				return err
			}
			updated, err := a.engine.UpdateRule(principal, id, func(r *rule.Rule) { *r = *patch })
			if err != nil {
				return err
			}
			return printJSON(updated)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON rule definition (required)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newRuleDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a rule, retaining its execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, _ := cmd.Flags().GetString("principal")
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeleteRule(principal, id); err != nil {
				return err
			}
			fmt.Printf("deleted rule %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newRuleListCmd() *cobra.Command {
	var projectKey, tag string
	var enabledOnly, disabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			filter := engine.RuleFilter{ProjectKey: projectKey, Tag: tag}
			if enabledOnly {
				yes := true
				filter.Enabled = &yes
			} else if disabledOnly {
				no := false
				filter.Enabled = &no
			}
			return printJSON(a.engine.GetRules(filter))
		},
	}
	cmd.Flags().StringVar(&projectKey, "project", "", "filter by project key")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "show only enabled rules")
	cmd.Flags().BoolVar(&disabledOnly, "disabled-only", false, "show only disabled rules")
	return cmd
}

func newRuleExecuteCmd() *cobra.Command {
	var id, issueKey, projectKey string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Manually fire a rule's pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, _ := cmd.Flags().GetString("principal")
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ex, err := a.engine.ExecuteRule(principal, id, &execution.Context{IssueKey: issueKey, ProjectKey: projectKey})
			if err != nil {
				return err
			}
			return printJSON(ex)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id (required)")
	cmd.Flags().StringVar(&issueKey, "issue", "", "issue key to execute against")
	cmd.Flags().StringVar(&projectKey, "project", "", "project key to execute against")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newRuleValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Dry-run validate a rule definition without persisting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := loadRuleFile(file)
			if err != nil {
				return err
			}
			errs := a.engine.ValidateRule(r)
			if len(errs) > 0 {
				if err := printJSON(errs); err != nil {
					return err
				}
				return svcerrors.InvalidInput("rule", errs[0].Error())
			}
			fmt.Println("valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON rule definition (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
