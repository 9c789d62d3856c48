package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/prospect"
	directorysvc "github.com/tmkamba/kanisa/services/directory"
	emailsvc "github.com/tmkamba/kanisa/services/email"
	"github.com/tmkamba/kanisa/storage/database"
	pgrepos "github.com/tmkamba/kanisa/storage/database/postgres"
)

var detectAsOf string

var detectDropOffsCmd = &cobra.Command{
	Use:   "detect-dropoffs",
	Short: "Run a single drop-off detection scan",
	Long: "Scans the pipeline for prospects whose last activity predates the per-stage " +
		"inactivity threshold, flags them and schedules recovery follow-up tasks. " +
		"The scan is idempotent; prospects already flagged are skipped.",
	Args: cobra.NoArgs,
	RunE: runDetectDropOffs,
}

func init() {
	detectDropOffsCmd.Flags().StringVar(&detectAsOf, "as-of", "",
		"Scan reference date, YYYY-MM-DD (default: today)")
}

func runDetectDropOffs(cmd *cobra.Command, args []string) error {
	asOf := time.Now().UTC()
	if detectAsOf != "" {
		parsed, err := time.Parse("2006-01-02", detectAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date %q: %w", detectAsOf, err)
		}
		asOf = parsed
	}

	sdb, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer sdb.Close()
	db := sqlx.NewDb(sdb, "postgres")

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	directory := directorysvc.NewClient(conf, logger)

	prospectSvc := prospect.NewService(pgrepos.NewProspectRepository(db), directory, conf, logger)
	taskSvc := followup.NewService(pgrepos.NewTaskRepository(db), directory, mailSvc, conf, logger)
	prospectSvc.SetFollowUpScheduler(taskSvc)

	flagged, err := prospectSvc.DetectDropOffs(context.Background(), prospect.Thresholds(conf.Detector), asOf)
	if err != nil {
		return err
	}

	if len(flagged) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stalled prospects found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROSPECT\tNAME\tSTAGE\tDAYS INACTIVE")
	for _, d := range flagged {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.ProspectID, d.ProspectName, d.DropOffStage, d.DaysInactive)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nFlagged %d prospect(s).\n", len(flagged))
	return nil
}
