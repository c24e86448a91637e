package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "keyctl",
		Short: "Administer keyledger credentials",
		Long: `keyctl issues, validates, rotates, and revokes API credentials directly
against the keyledger database. Every command is audited exactly like the
matching HTTP call.

Configuration is read from the same KEYLEDGER_ environment variables as the
server; KEYLEDGER_HASH_SECRET must match the server's.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			svc, err := a.open(cmd.Context(), a.dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			a.svc = svc
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Database path (default: KEYLEDGER_DB_PATH)")

	root.AddCommand(
		newIssueCmd(a),
		newValidateCmd(a),
		newRotateCmd(a),
		newRevokeCmd(a),
		newListCmd(a),
		newAuditCmd(a),
		newRotationsCmd(a),
	)
	return root
}

// runCLI executes root with args and closes any storage a command opened,
// including when the command fails. Cobra skips post-run hooks on error.
func runCLI(root *cobra.Command, a *app, args []string) (err error) {
	defer func() {
		if closeErr := a.closeServices(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close database: %w", closeErr)
		}
	}()

	root.SetArgs(args)
	return root.Execute()
}

func newIssueCmd(a *app) *cobra.Command {
	var owner, label string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new credential",
		Long:  `Issue a new credential. The key and secondary secret are printed once and cannot be retrieved again.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issued, err := a.svc.lifecycle.Issue(cmd.Context(), a.caller(), owner, label)
			if err != nil {
				return err
			}
			return a.printJSON(toIssuedView(*issued, ""))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Credential owner (required)")
	cmd.Flags().StringVar(&label, "label", "", "Credential label (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <key>",
		Short: "Validate a presented key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.svc.lifecycle.Validate(cmd.Context(), a.caller(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(toInfoView(*info))
		},
	}
}

func newRotateCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rotate <key>",
		Short: "Replace a credential with a new one",
		Long:  `Replace a credential with a new one carrying the same owner and label. The old key stops working immediately.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rotated, err := a.svc.lifecycle.Rotate(cmd.Context(), a.caller(), args[0], reason)
			if err != nil {
				return err
			}
			return a.printJSON(toIssuedView(rotated.Issued, rotated.RetiredKeyPrefix))
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the rotation (default: rotated)")
	return cmd
}

func newRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Delete a credential permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.lifecycle.Revoke(cmd.Context(), a.caller(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(a.out, "credential revoked")
			return err
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := a.svc.lifecycle.List(cmd.Context(), a.caller())
			if err != nil {
				return err
			}
			views := make([]credentialView, 0, len(creds))
			for _, c := range creds {
				views = append(views, toCredentialView(c))
			}
			return a.printJSON(views)
		},
	}
}

func newAuditCmd(a *app) *cobra.Command {
	var (
		subject, event, outcome string
		limit                   int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.svc.audit.ListEntries(cmd.Context(), model.AuditFilter{
				SubjectID: subject,
				EventType: model.EventType(event),
				Outcome:   model.Outcome(outcome),
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			views := make([]auditView, 0, len(entries))
			for _, e := range entries {
				views = append(views, toAuditView(e))
			}
			return a.printJSON(views)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Filter by credential ID")
	cmd.Flags().StringVar(&event, "event", "", "Filter by event type")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome: success, failure")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to show")
	return cmd
}

func newRotationsCmd(a *app) *cobra.Command {
	var (
		replacement, retired string
		limit                int
	)

	cmd := &cobra.Command{
		Use:   "rotations",
		Short: "Show rotation history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			edges, err := a.svc.audit.ListRotations(cmd.Context(), model.RotationFilter{
				ReplacementID: replacement,
				RetiredID:     retired,
				Limit:         limit,
			})
			if err != nil {
				return err
			}
			views := make([]rotationView, 0, len(edges))
			for _, e := range edges {
				views = append(views, toRotationView(e))
			}
			return a.printJSON(views)
		},
	}
	cmd.Flags().StringVar(&replacement, "replacement", "", "Filter by replacement credential ID")
	cmd.Flags().StringVar(&retired, "retired", "", "Filter by retired credential ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rotations to show")
	return cmd
}
