package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/moderation"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Enqueue, inspect and review moderation scans",
}

var scanEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue an uploaded asset for moderation",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := moderation.UploadInput{}
		input.TargetType, _ = cmd.Flags().GetString("target-type")
		input.TargetID, _ = cmd.Flags().GetString("target-id")
		input.ModelID, _ = cmd.Flags().GetString("model")
		input.CreatorID, _ = cmd.Flags().GetString("creator")
		input.StorageKey, _ = cmd.Flags().GetString("storage-key")
		input.StorageURL, _ = cmd.Flags().GetString("storage-url")
		input.Priority = priorityFlag(cmd)

		scanID, err := svc.QueueUploadForModeration(ctx, input)
		if err != nil {
			logging.Error(ctx, "enqueue scan failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "enqueue scan")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "queued scan: %s\n", scanID); err != nil {
			return errs.Wrap(err, "write enqueue output")
		}
		return nil
	}),
}

var scanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans in the moderation queue",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		filter := moderation.ListFilter{}
		filter.Statuses, _ = cmd.Flags().GetStringSlice("status")
		filter.TargetTypes, _ = cmd.Flags().GetStringSlice("target-type")
		filter.ModelID, _ = cmd.Flags().GetString("model")
		filter.Page, _ = cmd.Flags().GetInt("page")
		filter.PerPage, _ = cmd.Flags().GetInt("per-page")

		queue, err := svc.ListQueue(ctx, filter)
		if err != nil {
			logging.Error(ctx, "list moderation queue failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list moderation queue")
		}

		if yamlOutput() {
			items := make([]scanOutput, 0, len(queue.Items))
			for _, item := range queue.Items {
				items = append(items, toScanOutput(item.Scan))
			}
			return writeYAML(cmd.OutOrStdout(), map[string]any{
				"items":    items,
				"total":    queue.Total,
				"page":     queue.Page,
				"per_page": queue.PerPage,
			})
		}

		rows := make([][]string, 0, len(queue.Items))
		for _, item := range queue.Items {
			anchors := "-"
			if item.Model != nil {
				anchors = strconv.Itoa(item.Model.ActiveAnchorCount)
			}
			rows = append(rows, []string{
				item.Scan.ScanID,
				string(item.Scan.TargetType),
				string(item.Scan.Status),
				strconv.Itoa(item.Scan.Priority),
				orDash(item.Scan.ModelID),
				anchors,
				formatConfidence(item.Scan.Confidence),
				orDash(strings.Join(domain.FlagStrings(item.Scan.Flags), ",")),
			})
		}
		if err := renderTable(cmd.OutOrStdout(), []string{"scan", "target", "status", "priority", "model", "anchors", "confidence", "flags"}, rows); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d scans\n", queue.Page, len(queue.Items), queue.Total); err != nil {
			return errs.Wrap(err, "write scan list footer")
		}
		return nil
	}),
}

var scanShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show one scan",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		scan, err := svc.GetScan(cmd.Context(), cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "get scan")
		}
		return writeYAML(cmd.OutOrStdout(), toScanOutput(scan))
	}),
}

var scanReviewCmd = &cobra.Command{
	Use:   "review <scan-id>",
	Short: "Record a human decision on a scan awaiting review",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input := moderation.ReviewInput{ScanID: cmd.Flags().Arg(0)}
		input.Action, _ = cmd.Flags().GetString("action")
		input.ReviewerID, _ = cmd.Flags().GetString("reviewer")
		input.Notes, _ = cmd.Flags().GetString("notes")
		input.AddAsAnchor, _ = cmd.Flags().GetBool("add-anchor")

		result, reviewErr := svc.ReviewScan(ctx, input)
		if reviewErr != nil && result.Scan.ScanID == "" {
			logging.Error(ctx, "review scan failed", slog.Any("err", errs.Loggable(reviewErr)))
			return errs.Wrap(reviewErr, "review scan")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "scan %s is now %s\n", result.Scan.ScanID, result.Scan.Status); err != nil {
			return errs.Wrap(err, "write review output")
		}
		if reviewErr != nil {
			return errs.Wrap(reviewErr, "add reviewed scan as anchor")
		}
		if result.Anchor != nil {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "added anchor %s to model %s\n", result.Anchor.AnchorID, result.Anchor.ModelID); err != nil {
				return errs.Wrap(err, "write review anchor output")
			}
		}
		return nil
	}),
}

var scanNowCmd = &cobra.Command{
	Use:   "now <scan-id>",
	Short: "Scan one upload immediately, bypassing the queue order",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		requestedBy, _ := cmd.Flags().GetString("by")

		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		outcome, err := worker.TriggerImmediateScan(ctx, cmd.Flags().Arg(0), requestedBy)
		if err != nil {
			logging.Error(ctx, "immediate scan failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "trigger immediate scan")
		}

		scan, err := svc.GetScan(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "get scan")
		}
		if err := writeYAML(cmd.OutOrStdout(), toScanOutput(scan)); err != nil {
			return err
		}
		if outcome.Status != domain.JobCompleted {
			return fmt.Errorf("job %s ended %s: %s", outcome.JobID, outcome.Status, outcome.Error)
		}
		return nil
	}),
}

var scanRescanCmd = &cobra.Command{
	Use:   "rescan [scan-id...]",
	Short: "Re-scan decided or failed scans, one by id or in bulk",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		modelID, _ := cmd.Flags().GetString("model")
		requestedBy, _ := cmd.Flags().GetString("by")
		priority := priorityFlag(cmd)
		scanIDs := cmd.Flags().Args()

		if modelID == "" && len(scanIDs) == 0 {
			return errors.New("pass scan ids or --model")
		}

		if modelID == "" && len(scanIDs) == 1 {
			jobID, err := svc.RequestRescan(ctx, moderation.RescanInput{
				ScanID:      scanIDs[0],
				RequestedBy: requestedBy,
				Priority:    priority,
			})
			if err != nil {
				logging.Error(ctx, "request rescan failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "request rescan")
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "queued rescan job: %s\n", jobID); err != nil {
				return errs.Wrap(err, "write rescan output")
			}
			return nil
		}

		result, err := svc.BulkRescan(ctx, moderation.BulkRescanInput{
			ModelID:     modelID,
			ScanIDs:     scanIDs,
			RequestedBy: requestedBy,
			Priority:    priority,
		})
		if err != nil {
			logging.Error(ctx, "bulk rescan failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "bulk rescan")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "queued bulk rescan job %s for %d scan(s), skipped %d\n",
			orDash(result.JobID), len(result.ScanIDs), len(result.Skipped)); err != nil {
			return errs.Wrap(err, "write bulk rescan output")
		}
		return nil
	}),
}

// priorityFlag returns nil unless --priority was passed, so the service can
// derive or keep the existing priority.
func priorityFlag(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("priority") {
		return nil
	}
	priority, _ := cmd.Flags().GetInt("priority")
	return &priority
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanEnqueueCmd, scanListCmd, scanShowCmd, scanReviewCmd, scanNowCmd, scanRescanCmd)

	scanEnqueueCmd.Flags().String("target-type", "", "Upload kind: model_profile_photo, model_gallery_item, model_cover, ppv_content, chat_media, onboarding_image")
	scanEnqueueCmd.Flags().String("target-id", "", "Id of the uploaded entity")
	scanEnqueueCmd.Flags().String("model", "", "Model the upload depicts")
	scanEnqueueCmd.Flags().String("creator", "", "Creator who uploaded it")
	scanEnqueueCmd.Flags().String("storage-key", "", "Object storage key")
	scanEnqueueCmd.Flags().String("storage-url", "", "Fetchable URL of the upload")
	scanEnqueueCmd.Flags().Int("priority", 0, "Queue priority 1..10 (default: derived from target type)")
	for _, name := range []string{"target-type", "target-id", "creator", "storage-key", "storage-url"} {
		_ = scanEnqueueCmd.MarkFlagRequired(name)
	}

	scanListCmd.Flags().StringSlice("status", nil, "Filter by scan status (default: pending_review)")
	scanListCmd.Flags().StringSlice("target-type", nil, "Filter by target type")
	scanListCmd.Flags().String("model", "", "Filter by model id")
	scanListCmd.Flags().Int("page", 1, "Page number")
	scanListCmd.Flags().Int("per-page", 20, "Scans per page")

	scanReviewCmd.Flags().String("action", "", "approve, reject or escalate")
	scanReviewCmd.Flags().String("reviewer", "", "Reviewer id")
	scanReviewCmd.Flags().String("notes", "", "Review notes")
	scanReviewCmd.Flags().Bool("add-anchor", false, "Add the approved upload as a reference anchor")
	_ = scanReviewCmd.MarkFlagRequired("action")
	_ = scanReviewCmd.MarkFlagRequired("reviewer")

	scanNowCmd.Flags().String("by", "cli", "Who requested the scan")

	scanRescanCmd.Flags().String("model", "", "Re-scan every decided or failed scan of this model")
	scanRescanCmd.Flags().String("by", "cli", "Who requested the re-scan")
	scanRescanCmd.Flags().Int("priority", 0, "Queue priority 1..10 (default: keep current)")
}
