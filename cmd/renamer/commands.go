package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maxgarvey/show_renamer/jobs"
	"github.com/maxgarvey/show_renamer/store"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search shows by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := ctx.metadata()
			if err != nil {
				return err
			}
			results, err := meta.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No shows found")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{strconv.Itoa(r.ID), r.Name, r.Year})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Year"}, rows, 1)
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a series and its seasons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid show id %q", args[0])
			}
			meta, err := ctx.metadata()
			if err != nil {
				return err
			}
			show, err := meta.Show(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", show.Name, show.Year)
			rows := make([][]string, 0, len(show.Seasons))
			for _, s := range show.Seasons {
				rows = append(rows, []string{strconv.Itoa(s.SeasonNumber), s.Name, strconv.Itoa(s.EpisodeCount), s.AirDate})
			}
			printTable(out, []string{"Season", "Name", "Episodes", "Air Date"}, rows, 1, 3)
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		showID    int
		noPosters bool
		match     string
		writeTags bool
	)
	cmd := &cobra.Command{
		Use:   "process <folder>",
		Short: "Rename a show folder's episodes and download posters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showID <= 0 {
				return errors.New("--show-id is required")
			}
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(folder); err != nil || !info.IsDir() {
				return fmt.Errorf("folder not found: %s", folder)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if match == "" {
				match = cfg.Library.MatchStrategy
			}
			if !cmd.Flags().Changed("write-tags") {
				writeTags = cfg.Library.WriteTags
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			proc, err := ctx.processor(logger)
			if err != nil {
				return err
			}
			show, err := proc.Source.Show(cmd.Context(), showID)
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			manager := jobs.NewManager(cmd.Context(), st, proc, ctx.lockDir(), logger)
			job, err := manager.Start(cmd.Context(), jobs.Request{
				FolderPath:      folder,
				ShowID:          showID,
				ShowName:        show.Name,
				DownloadPosters: !noPosters,
				WriteTags:       writeTags,
				MatchStrategy:   match,
			})
			if err != nil {
				return err
			}
			manager.Wait()

			return printJob(context.WithoutCancel(cmd.Context()), cmd, st, job.ID)
		},
	}
	cmd.Flags().IntVar(&showID, "show-id", 0, "TMDB show id")
	cmd.Flags().BoolVar(&noPosters, "no-posters", false, "Skip poster downloads")
	cmd.Flags().StringVar(&match, "match", "", "Episode matching: index or filename")
	cmd.Flags().BoolVar(&writeTags, "write-tags", false, "Write episode tags into renamed files with ffmpeg")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent processing jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, j := range list {
				rows = append(rows, []string{
					j.ID,
					j.ShowName,
					string(j.State),
					strconv.Itoa(j.Stats.Renamed),
					strconv.Itoa(j.Stats.Skipped),
					strconv.Itoa(j.Stats.Errors),
					strconv.Itoa(j.Stats.PostersDownloaded),
					humanize.Time(j.CreatedAt),
				})
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "Show", "State", "Renamed", "Skipped", "Errors", "Posters", "Created"}, rows,
				4, 5, 6, 7)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show (0 for all)")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show one job and its renames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			id, err := resolveJobID(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			return printJob(cmd.Context(), cmd, st, id)
		},
	}
}

// resolveJobID accepts a full job id or any unique prefix of one.
func resolveJobID(ctx context.Context, st store.Store, ref string) (string, error) {
	ids, err := st.JobIDsWithPrefix(ctx, ref, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("job %s not found", ref)
	case 1:
		return ids[0], nil
	}
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
	}
	return "", fmt.Errorf("job id %s is ambiguous", ref)
}

func printJob(ctx context.Context, cmd *cobra.Command, st store.Store, id string) error {
	job, err := st.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return err
	}
	renames, err := st.ListRenames(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s: %s (%s)\n", job.ID, job.ShowName, job.State)
	fmt.Fprintf(out, "  folder:   %s\n", job.FolderPath)
	fmt.Fprintf(out, "  posters:  %s\n", yesNo(job.DownloadPosters))
	fmt.Fprintf(out, "  matching: %s\n", job.MatchStrategy)
	fmt.Fprintf(out, "  renamed: %d  skipped: %d  errors: %d  posters: %d\n",
		job.Stats.Renamed, job.Stats.Skipped, job.Stats.Errors, job.Stats.PostersDownloaded)
	if job.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", job.Error)
	}
	if len(renames) > 0 {
		rows := make([][]string, 0, len(renames))
		for _, r := range renames {
			rows = append(rows, []string{
				fmt.Sprintf("S%02dE%02d", r.Season, r.Episode),
				filepath.Base(r.OldPath),
				filepath.Base(r.NewPath),
			})
		}
		printTable(out, []string{"Episode", "From", "To"}, rows)
	}
	if job.State == store.JobFailed {
		return fmt.Errorf("job failed: %s", job.Error)
	}
	return nil
}
