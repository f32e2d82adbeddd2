package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/moderation"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Manage model reference anchors",
}

var anchorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active anchors of a model",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		modelID, _ := cmd.Flags().GetString("model")

		anchors, err := svc.GetModelAnchors(cmd.Context(), modelID)
		if err != nil {
			return errs.Wrap(err, "list anchors")
		}

		if yamlOutput() {
			items := make([]anchorOutput, 0, len(anchors))
			for _, anchor := range anchors {
				items = append(items, toAnchorOutput(anchor))
			}
			return writeYAML(cmd.OutOrStdout(), items)
		}

		rows := make([][]string, 0, len(anchors))
		for _, anchor := range anchors {
			rows = append(rows, []string{anchor.AnchorID, anchor.StorageKey, anchor.AddedBy, orDash(anchor.SourceScanID), anchor.CreatedAt})
		}
		return renderTable(cmd.OutOrStdout(), []string{"anchor", "storage_key", "added_by", "source_scan", "created_at"}, rows)
	}),
}

var anchorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a reference anchor to a model",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := moderation.AddAnchorInput{}
		input.ModelID, _ = cmd.Flags().GetString("model")
		input.StorageKey, _ = cmd.Flags().GetString("storage-key")
		input.StorageURL, _ = cmd.Flags().GetString("storage-url")
		input.AddedBy, _ = cmd.Flags().GetString("by")
		input.Note, _ = cmd.Flags().GetString("note")

		anchor, err := svc.AddModelAnchor(ctx, input)
		if err != nil {
			logging.Error(ctx, "add anchor failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "add anchor")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "added anchor: %s\n", anchor.AnchorID); err != nil {
			return errs.Wrap(err, "write add anchor output")
		}
		return nil
	}),
}

var anchorRemoveCmd = &cobra.Command{
	Use:   "remove <anchor-id>",
	Short: "Deactivate a reference anchor",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		modelID, _ := cmd.Flags().GetString("model")
		removedBy, _ := cmd.Flags().GetString("by")

		if err := svc.RemoveModelAnchor(ctx, modelID, cmd.Flags().Arg(0), removedBy); err != nil {
			logging.Error(ctx, "remove anchor failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "remove anchor")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "removed anchor: %s\n", cmd.Flags().Arg(0)); err != nil {
			return errs.Wrap(err, "write remove anchor output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorListCmd, anchorAddCmd, anchorRemoveCmd)

	anchorListCmd.Flags().String("model", "", "Model id")
	_ = anchorListCmd.MarkFlagRequired("model")

	anchorAddCmd.Flags().String("model", "", "Model id")
	anchorAddCmd.Flags().String("storage-key", "", "Object storage key of the reference image")
	anchorAddCmd.Flags().String("storage-url", "", "Fetchable URL of the reference image")
	anchorAddCmd.Flags().String("by", "cli", "Who added the anchor")
	anchorAddCmd.Flags().String("note", "", "Free-form note")
	for _, name := range []string{"model", "storage-key", "storage-url"} {
		_ = anchorAddCmd.MarkFlagRequired(name)
	}

	anchorRemoveCmd.Flags().String("model", "", "Only remove when the anchor belongs to this model")
	anchorRemoveCmd.Flags().String("by", "cli", "Who removed the anchor")
}
