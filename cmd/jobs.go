package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/batch/repository"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Print batches recorded in the registry file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("registry")
			if path == "" {
				path = viper.GetString("batch.registry_path")
			}
			saved, found, err := repository.ReadFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !found || len(saved) == 0 {
				_, _ = fmt.Fprintln(out, "no batches")
				return nil
			}

			jobs := make([]*domain.BatchJob, 0, len(saved))
			for _, job := range saved {
				jobs = append(jobs, job)
			}
			sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "USER\tKIND\tCHANNEL\tPROGRESS\tSUCCESS\tCANCEL\tUPDATED")
			for _, job := range jobs {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%t\t%s\n",
					job.UserID, job.Kind, job.ChannelRef, job.Current, job.Total, job.Success,
					job.CancelRequested, job.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("registry", "", "Registry file (default batch.registry_path).")
	cmd.Flags().Bool("json", false, "Print raw records as JSON.")
	return cmd
}
