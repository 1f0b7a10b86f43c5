package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/usecase/qcflag"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run QC window commands",
}

var runSetBoundariesCmd = &cobra.Command{
	Use:   "set-boundaries",
	Short: "Set the QC window of a run and reconcile its flags",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		runNumber, _ := cmd.Flags().GetInt64("run")
		actor, _ := cmd.Flags().GetInt64("actor")
		result, err := svc.UpdateRunBoundaries(ctx, qcflag.UpdateRunBoundariesInput{
			RunNumber:   runNumber,
			QcTimeStart: optionalInt64(cmd, "start"),
			QcTimeEnd:   optionalInt64(cmd, "end"),
			ActorID:     actor,
		})
		if err != nil {
			logging.Error(ctx, "update run boundaries failed",
				slog.Any("err", errs.Loggable(err)),
				slog.Int64("run_number", runNumber),
			)
			return errs.Wrap(err, "update run boundaries")
		}

		return writeOutput(cmd, result, func(w io.Writer) error {
			plan := result.Reconcile
			_, err := fmt.Fprintf(w,
				"run\t%d\nwindow\t%s .. %s\nflags updated\t%d\nperiods updated\t%d\nperiods pruned\t%d\nflags deleted\t%v\n",
				result.Run.RunNumber,
				formatMillis(result.Run.QcTimeStart),
				formatMillis(result.Run.QcTimeEnd),
				len(plan.UpdatedFlags),
				len(plan.UpdatedPeriods),
				len(plan.PrunedPeriods),
				plan.DeletedFlagIDs,
			)
			return err
		})
	}),
}

var runAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audit events of a run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		runNumber, _ := cmd.Flags().GetInt64("run")
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := svc.ListAuditEvents(cmd.Context(), runNumber, limit)
		if err != nil {
			return errs.Wrap(err, "list audit events")
		}
		return writeOutput(cmd, events, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "ID\tKIND\tSCOPE\tFLAG\tACTOR\tCREATED_AT"); err != nil {
				return err
			}
			for _, event := range events {
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					event.ID, event.Kind, event.Scope, formatMillis(event.FlagID), event.Actor, event.CreatedAt); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runSetBoundariesCmd)
	runCmd.AddCommand(runAuditCmd)

	runSetBoundariesCmd.Flags().Int64("run", 0, "Run number")
	runSetBoundariesCmd.Flags().Int64("start", 0, "QC time start in epoch milliseconds (omit to clear)")
	runSetBoundariesCmd.Flags().Int64("end", 0, "QC time end in epoch milliseconds (omit to clear)")
	runSetBoundariesCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
	_ = runSetBoundariesCmd.MarkFlagRequired("run")

	runAuditCmd.Flags().Int64("run", 0, "Run number")
	runAuditCmd.Flags().Int("limit", 50, "Maximum number of events")
	_ = runAuditCmd.MarkFlagRequired("run")
}
