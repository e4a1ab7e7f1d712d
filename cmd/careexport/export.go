package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborcare/careexport/internal/exportjob"
	"github.com/harborcare/careexport/internal/model"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Submit and track bulk data exports",
	}
	cmd.AddCommand(
		newExportRunCmd(),
		newExportStatusCmd(),
	)
	return cmd
}

func newExportRunCmd() *cobra.Command {
	var (
		exportType string
		from       string
		to         string
		format     string
		compress   bool
		categories []string
		outputDir  string
		noDownload bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit an export, poll until it finishes, and download the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, api, err := loadAPI()
			if err != nil {
				return err
			}
			filters, err := buildFilters(from, to, format, compress, categories)
			if err != nil {
				return err
			}

			registry := exportjob.NewRegistry()
			auditor := exportjob.NewAuditNotifier(api, cfg.ActorID)
			client := exportjob.NewClient(api, registry, auditor, cfg.ActorID, cfg.ActorTier)
			poller := exportjob.NewPoller(api, registry, cfg.PollInterval, cfg.MaxPolls)
			downloader := exportjob.NewDownloader(registry, auditor)

			job, err := client.Submit(ctx, model.ExportType(exportType), filters)
			if err != nil {
				return err
			}
			fmt.Printf("export %s accepted (%d records estimated)\n", job.ID, job.TotalRecords)

			updates, cancelSub := registry.Subscribe()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for update := range updates {
					if update.Status == model.StatusProcessing {
						fmt.Printf("  %3d%%  %d/%d records\n", update.Progress, update.ProcessedRecords, update.TotalRecords)
					}
				}
			}()
			poller.Run(ctx, job.ID)
			cancelSub()
			<-done

			final, ok := registry.Get(job.ID)
			if !ok {
				return fmt.Errorf("job %s disappeared from the registry", job.ID)
			}
			switch final.Status {
			case model.StatusCompleted:
				fmt.Printf("export %s completed\n", final.ID)
			case model.StatusFailed:
				msg := "unknown error"
				if final.Error != nil {
					msg = *final.Error
				}
				return fmt.Errorf("export %s failed: %s", final.ID, msg)
			default:
				return fmt.Errorf("export %s did not finish (status %s)", final.ID, final.Status)
			}
			if noDownload {
				return nil
			}
			if outputDir == "" {
				outputDir = cfg.DownloadDir
			}
			path, err := downloader.Download(ctx, final.ID, outputDir)
			if err != nil {
				return err
			}
			fmt.Printf("artifact saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&exportType, "type", "t", "", "Export type (see 'careexport types')")
	cmd.Flags().StringVar(&from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "csv", "Artifact format: csv or json")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip the artifact")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Restrict to a category subset, e.g. severity or medication (repeatable; not every type supports it)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the downloaded artifact")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Skip downloading the finished artifact")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newExportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the server's view of one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := loadAPI()
			if err != nil {
				return err
			}
			resp, err := api.GetExportStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("status:    %s\n", resp.Status)
			fmt.Printf("progress:  %d%% (%d/%d records)\n", resp.Progress, resp.ProcessedRecords, resp.TotalRecords)
			if resp.CompletedAt != nil {
				fmt.Printf("finished:  %s\n", resp.CompletedAt.Format(time.RFC3339))
			}
			if resp.DownloadURL != nil {
				fmt.Printf("download:  %s\n", *resp.DownloadURL)
			}
			if resp.Error != nil {
				fmt.Printf("error:     %s\n", *resp.Error)
			}
			return nil
		},
	}
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List export types permitted for the configured actor tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadAPI()
			if err != nil {
				return err
			}
			for _, t := range model.PermittedExportTypes(cfg.ActorTier) {
				marker := " "
				if model.ContainsPHI(t) {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, t)
			}
			fmt.Println("\n* contains protected health information; exports are audited")
			return nil
		},
	}
}

func buildFilters(from, to, format string, compress bool, categories []string) (model.ExportFilters, error) {
	filters := model.ExportFilters{
		Format:     model.ExportFormat(format),
		Compress:   compress,
		Categories: categories,
	}
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return model.ExportFilters{}, fmt.Errorf("invalid --from date %q", from)
		}
		filters.DateFrom = t.UTC()
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return model.ExportFilters{}, fmt.Errorf("invalid --to date %q", to)
		}
		filters.DateTo = t.UTC()
	}
	return filters, nil
}
