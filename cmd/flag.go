package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
	"qcflags/internal/usecase/qcflag"
)

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Create, discard and verify QC flags",
}

var flagCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Insert a QC flag; it takes over its range from older flags of the same scope",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		runNumber, _ := cmd.Flags().GetInt64("run")
		detectorID, _ := cmd.Flags().GetInt64("detector")
		flagTypeID, _ := cmd.Flags().GetInt64("type")
		comment, _ := cmd.Flags().GetString("comment")
		origin, _ := cmd.Flags().GetString("origin")
		actor, _ := cmd.Flags().GetInt64("actor")

		result, err := svc.InsertFlag(ctx, qcflag.InsertFlagInput{
			RunNumber:        runNumber,
			DetectorID:       detectorID,
			DataPassID:       optionalInt64(cmd, "data-pass"),
			SimulationPassID: optionalInt64(cmd, "simulation-pass"),
			FlagTypeID:       flagTypeID,
			From:             optionalInt64(cmd, "from"),
			To:               optionalInt64(cmd, "to"),
			Comment:          comment,
			Origin:           origin,
			CreatedByID:      actor,
		})
		if err != nil {
			logging.Error(ctx, "insert flag failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "insert flag")
		}

		return writeOutput(cmd, result, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "flag\t%d\nperiod\t%s\n", result.Flag.ID, result.Period.Period); err != nil {
				return err
			}
			for _, change := range result.Changes {
				after := "removed"
				if len(change.After) > 0 {
					parts := make([]string, 0, len(change.After))
					for _, item := range change.After {
						parts = append(parts, item.Period.String())
					}
					after = strings.Join(parts, " ")
				}
				if _, err := fmt.Fprintf(w, "flag %d\t%s -> %s\n", change.Before.FlagID, change.Before.Period, after); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var flagDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard a flag; its coverage becomes undefined",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		flagID, _ := cmd.Flags().GetInt64("id")
		comment, _ := cmd.Flags().GetString("comment")
		actor, _ := cmd.Flags().GetInt64("actor")

		flag, err := svc.DiscardFlag(ctx, qcflag.DiscardFlagInput{FlagID: flagID, ActorID: actor, Comment: comment})
		if err != nil {
			logging.Error(ctx, "discard flag failed", slog.Any("err", errs.Loggable(err)), slog.Int64("flag_id", flagID))
			return errs.Wrap(err, "discard flag")
		}
		return writeOutput(cmd, flag, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "discarded flag %d (run %d, detector %d)\n", flag.ID, flag.Scope.RunNumber, flag.Scope.DetectorID)
			return err
		})
	}),
}

var flagVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a flag created by another user",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		flagID, _ := cmd.Flags().GetInt64("id")
		comment, _ := cmd.Flags().GetString("comment")
		actor, _ := cmd.Flags().GetInt64("actor")

		verification, err := svc.VerifyFlag(ctx, qcflag.VerifyFlagInput{FlagID: flagID, UserID: actor, Comment: comment})
		if err != nil {
			logging.Error(ctx, "verify flag failed", slog.Any("err", errs.Loggable(err)), slog.Int64("flag_id", flagID))
			return errs.Wrap(err, "verify flag")
		}
		return writeOutput(cmd, verification, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "verification %d on flag %d by user %d\n", verification.ID, verification.FlagID, verification.CreatedByID)
			return err
		})
	}),
}

var flagPeriodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "Show the effective-period timeline of a run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		runNumber, _ := cmd.Flags().GetInt64("run")
		detectorIDs, _ := cmd.Flags().GetInt64Slice("detector")

		result, err := svc.GetEffectivePeriods(cmd.Context(), qcflag.EffectivePeriodsQuery{
			RunNumber:        runNumber,
			DetectorIDs:      detectorIDs,
			DataPassID:       optionalInt64(cmd, "data-pass"),
			SimulationPassID: optionalInt64(cmd, "simulation-pass"),
		})
		if err != nil {
			return errs.Wrap(err, "get effective periods")
		}

		return writeOutput(cmd, result, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "DETECTOR\tFROM\tTO\tQUALITY\tFLAG\tTYPE\tVERIFIED"); err != nil {
				return err
			}
			for _, timeline := range result.Detectors {
				for _, segment := range timeline.Segments {
					flagID, typeName, verified := "-", "-", "-"
					if segment.Flag != nil {
						flagID = fmt.Sprintf("%d", segment.Flag.FlagID)
						typeName = segment.Flag.FlagTypeName
						verified = fmt.Sprintf("%t", segment.Flag.Verified)
					}
					if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						timeline.Detector.Name,
						formatMillis(segment.From),
						formatMillis(segment.To),
						segment.Quality,
						flagID,
						typeName,
						verified,
					); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}),
}

var flagVerificationsCmd = &cobra.Command{
	Use:   "verifications",
	Short: "List the verifications of a flag",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		flagID, _ := cmd.Flags().GetInt64("id")
		items, err := svc.ListVerifications(cmd.Context(), flagID)
		if err != nil {
			return errs.Wrap(err, "list verifications")
		}
		return writeOutput(cmd, items, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "ID\tUSER\tCREATED_AT\tCOMMENT"); err != nil {
				return err
			}
			for _, item := range items {
				if _, err := fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", item.ID, item.CreatedByID, item.CreatedAt, item.Comment); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var flagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the live flags of a scope, newest first",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		runNumber, _ := cmd.Flags().GetInt64("run")
		detectorID, _ := cmd.Flags().GetInt64("detector")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		page, err := svc.ListScopeFlags(cmd.Context(), domainqcflag.ScopeKey{
			RunNumber:        runNumber,
			DetectorID:       detectorID,
			DataPassID:       optionalInt64(cmd, "data-pass"),
			SimulationPassID: optionalInt64(cmd, "simulation-pass"),
		}, limit, offset)
		if err != nil {
			return errs.Wrap(err, "list flags")
		}
		return writeOutput(cmd, page, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "ID\tTYPE\tFROM\tTO\tPERIODS\tVERIFIED\tAUTHOR\tCOMMENT"); err != nil {
				return err
			}
			for _, item := range page.Items {
				if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					item.ID,
					item.FlagType.Name,
					formatMillis(item.Period.From),
					formatMillis(item.Period.To),
					len(item.EffectivePeriods),
					len(item.Verifications),
					item.CreatedByID,
					item.Comment,
				); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(w, "showing %d of %d\n", len(page.Items), page.Total)
			return err
		})
	}),
}

var flagGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a flag with its type, verifications and effective periods",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		flagID, _ := cmd.Flags().GetInt64("id")
		details, err := svc.GetFlag(cmd.Context(), flagID)
		if err != nil {
			return errs.Wrap(err, "get flag")
		}
		return writeOutput(cmd, details, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "flag\t%d\nscope\t%s\ntype\t%s (bad=%t)\nperiod\t%s\ndeleted\t%t\n",
				details.ID, details.Scope, details.FlagType.Name, details.FlagType.Bad, details.Period, details.Deleted); err != nil {
				return err
			}
			for _, item := range details.EffectivePeriods {
				if _, err := fmt.Fprintf(w, "effective\t%s\n", item.Period); err != nil {
					return err
				}
			}
			for _, item := range details.Verifications {
				if _, err := fmt.Fprintf(w, "verified by\t%d\t%s\n", item.CreatedByID, item.Comment); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("data-pass", 0, "Data pass id (omit for synchronous flags)")
	cmd.Flags().Int64("simulation-pass", 0, "Simulation pass id")
}

func init() {
	rootCmd.AddCommand(flagCmd)
	flagCmd.AddCommand(flagCreateCmd)
	flagCmd.AddCommand(flagDiscardCmd)
	flagCmd.AddCommand(flagVerifyCmd)
	flagCmd.AddCommand(flagPeriodsCmd)
	flagCmd.AddCommand(flagVerificationsCmd)
	flagCmd.AddCommand(flagListCmd)
	flagCmd.AddCommand(flagGetCmd)

	flagCreateCmd.Flags().Int64("run", 0, "Run number")
	flagCreateCmd.Flags().Int64("detector", 0, "Detector id")
	flagCreateCmd.Flags().Int64("type", 0, "Flag type id")
	flagCreateCmd.Flags().Int64("from", 0, "Start in epoch milliseconds (omit for run start)")
	flagCreateCmd.Flags().Int64("to", 0, "End in epoch milliseconds (omit for run end)")
	flagCreateCmd.Flags().String("comment", "", "Free-text comment")
	flagCreateCmd.Flags().String("origin", "cli", "Origin recorded on the flag")
	flagCreateCmd.Flags().Int64("actor", 1, "Creating user id")
	addScopeFlags(flagCreateCmd)
	_ = flagCreateCmd.MarkFlagRequired("run")
	_ = flagCreateCmd.MarkFlagRequired("detector")
	_ = flagCreateCmd.MarkFlagRequired("type")

	for _, c := range []*cobra.Command{flagDiscardCmd, flagVerifyCmd} {
		c.Flags().Int64("id", 0, "Flag id")
		c.Flags().String("comment", "", "Free-text comment")
		c.Flags().Int64("actor", 1, "Acting user id")
		_ = c.MarkFlagRequired("id")
	}

	flagPeriodsCmd.Flags().Int64("run", 0, "Run number")
	flagPeriodsCmd.Flags().Int64Slice("detector", nil, "Detector ids (default: all QC detectors of the run)")
	addScopeFlags(flagPeriodsCmd)
	_ = flagPeriodsCmd.MarkFlagRequired("run")

	flagVerificationsCmd.Flags().Int64("id", 0, "Flag id")
	_ = flagVerificationsCmd.MarkFlagRequired("id")

	flagListCmd.Flags().Int64("run", 0, "Run number")
	flagListCmd.Flags().Int64("detector", 0, "Detector id")
	flagListCmd.Flags().Int("limit", 50, "Page size")
	flagListCmd.Flags().Int("offset", 0, "Flags to skip")
	addScopeFlags(flagListCmd)
	_ = flagListCmd.MarkFlagRequired("run")
	_ = flagListCmd.MarkFlagRequired("detector")

	flagGetCmd.Flags().Int64("id", 0, "Flag id")
	_ = flagGetCmd.MarkFlagRequired("id")
}
