package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newEntitlementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlements",
		Short: "View and toggle platform module entitlements",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List module entitlements",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, api, err := loadAPI()
				if err != nil {
					return err
				}
				ents, err := api.ListEntitlements(cmd.Context())
				if err != nil {
					return err
				}
				for _, ent := range ents {
					state := "disabled"
					if ent.Enabled {
						state = "enabled"
					}
					fmt.Printf("%-24s %s\n", ent.Module, state)
				}
				return nil
			},
		},
		newEntitlementsSetCmd(),
	)
	return cmd
}

func newEntitlementsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <module> <true|false>",
		Short: "Enable or disable a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", args[1])
			}
			_, api, err := loadAPI()
			if err != nil {
				return err
			}
			ent, err := api.SetEntitlement(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			state := "disabled"
			if ent.Enabled {
				state = "enabled"
			}
			fmt.Printf("%s is now %s\n", ent.Module, state)
			return nil
		},
	}
}

func newAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent compliance events",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := loadAPI()
			if err != nil {
				return err
			}
			events, err := api.RecentAuditEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Printf("%s  %-22s %-14s %s/%s\n",
					event.CreatedAt.Format(time.RFC3339), event.Action, event.ActorID,
					event.ResourceType, event.ResourceID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum events to show")
	return cmd
}

func newFormsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Paper-form intake",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "upload <scan.pdf>",
		Short: "Upload a scanned paper form for extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := loadAPI()
			if err != nil {
				return err
			}
			id, err := api.UploadForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("form %s queued for extraction\n", id)
			return nil
		},
	})
	return cmd
}
