package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
	"qcflags/internal/usecase/qcflag"
)

var gaqCmd = &cobra.Command{
	Use:   "gaq",
	Short: "Global aggregated quality of data pass runs",
}

var gaqSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the GAQ summary of one run, or of every run of the data pass",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		dataPassID, _ := cmd.Flags().GetInt64("data-pass")
		mcr := optionalBool(cmd, "mc-reproducible-as-not-bad")

		var summaries []qcflag.GaqSummary
		if runNumber := optionalInt64(cmd, "run"); runNumber != nil {
			summary, err := svc.GetGaqSummary(cmd.Context(), qcflag.GaqSummaryQuery{
				DataPassID:             dataPassID,
				RunNumber:              *runNumber,
				MCReproducibleAsNotBad: mcr,
			})
			if err != nil {
				return errs.Wrap(err, "get gaq summary")
			}
			summaries = append(summaries, summary)
		} else {
			items, err := svc.GetDataPassGaqSummaries(cmd.Context(), dataPassID, mcr)
			if err != nil {
				return errs.Wrap(err, "get data pass gaq summaries")
			}
			summaries = items
		}

		return writeOutput(cmd, summaries, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "RUN\tDETECTORS\tBAD\tNOT_BAD\tUNDEFINED\tMC\tMISSING_VERIFICATIONS\tUNDEFINED_PERIODS"); err != nil {
				return err
			}
			for _, item := range summaries {
				if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%d\t%d\n",
					item.RunNumber,
					joinDetectorNames(item.Detectors),
					formatFraction(item.Summary.BadEffectiveRunCoverage),
					formatFraction(item.Summary.ExplicitlyNotBadEffectiveRunCoverage),
					formatFraction(item.Summary.UndefinedQualityCoverage),
					item.Summary.MCReproducible,
					item.Summary.MissingVerificationsCount,
					item.Summary.UndefinedQualityPeriodsCount,
				); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var passSummariesCmd = &cobra.Command{
	Use:   "pass-summaries",
	Short: "Show the coverage of every flagged detector of every run of a data or simulation pass",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		summaries, err := svc.GetPassDetectorSummaries(cmd.Context(), qcflag.PassDetectorSummariesQuery{
			DataPassID:             optionalInt64(cmd, "data-pass"),
			SimulationPassID:       optionalInt64(cmd, "simulation-pass"),
			MCReproducibleAsNotBad: optionalBool(cmd, "mc-reproducible-as-not-bad"),
		})
		if err != nil {
			return errs.Wrap(err, "get pass detector summaries")
		}

		return writeOutput(cmd, summaries, func(w io.Writer) error {
			if _, err := fmt.Fprintln(w, "RUN\tDETECTOR\tBAD\tNOT_BAD\tMC\tMISSING_VERIFICATIONS"); err != nil {
				return err
			}
			for _, runNumber := range slices.Sorted(maps.Keys(summaries)) {
				perDetector := summaries[runNumber]
				for _, detectorID := range slices.Sorted(maps.Keys(perDetector)) {
					item := perDetector[detectorID]
					if _, err := fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%t\t%d\n",
						runNumber,
						detectorID,
						formatFraction(item.BadEffectiveRunCoverage),
						formatFraction(item.ExplicitlyNotBadEffectiveRunCoverage),
						item.MCReproducible,
						item.MissingVerificationsCount,
					); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}),
}

var gaqDetectorsCmd = &cobra.Command{
	Use:   "detectors",
	Short: "List the detectors aggregated for a data pass run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		dataPassID, _ := cmd.Flags().GetInt64("data-pass")
		runNumber, _ := cmd.Flags().GetInt64("run")
		detectors, err := svc.ListGaqDetectors(cmd.Context(), dataPassID, runNumber)
		if err != nil {
			return errs.Wrap(err, "list gaq detectors")
		}
		return writeDetectors(cmd, detectors)
	}),
}

var gaqSetDetectorsCmd = &cobra.Command{
	Use:   "set-detectors",
	Short: "Replace the detectors aggregated for a data pass run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		dataPassID, _ := cmd.Flags().GetInt64("data-pass")
		runNumber, _ := cmd.Flags().GetInt64("run")
		detectorIDs, _ := cmd.Flags().GetInt64Slice("detector")
		actor, _ := cmd.Flags().GetInt64("actor")

		detectors, err := svc.SetGaqDetectors(ctx, qcflag.SetGaqDetectorsInput{
			DataPassID:  dataPassID,
			RunNumber:   runNumber,
			DetectorIDs: detectorIDs,
			ActorID:     actor,
		})
		if err != nil {
			logging.Error(ctx, "set gaq detectors failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "set gaq detectors")
		}
		return writeDetectors(cmd, detectors)
	}),
}

var gaqDefaultDetectorsCmd = &cobra.Command{
	Use:   "default-detectors",
	Short: "Reset the GAQ detectors of a data pass run to the beam type preset",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		dataPassID, _ := cmd.Flags().GetInt64("data-pass")
		runNumber, _ := cmd.Flags().GetInt64("run")
		actor, _ := cmd.Flags().GetInt64("actor")

		detectors, err := svc.UseDefaultGaqDetectors(ctx, dataPassID, runNumber, actor)
		if err != nil {
			logging.Error(ctx, "use default gaq detectors failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "use default gaq detectors")
		}
		return writeDetectors(cmd, detectors)
	}),
}

func writeDetectors(cmd *cobra.Command, detectors []ports.Detector) error {
	return writeOutput(cmd, detectors, func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, "ID\tNAME"); err != nil {
			return err
		}
		for _, item := range detectors {
			if _, err := fmt.Fprintf(w, "%d\t%s\n", item.ID, item.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

func joinDetectorNames(detectors []ports.Detector) string {
	if len(detectors) == 0 {
		return "-"
	}
	names := make([]string, 0, len(detectors))
	for _, item := range detectors {
		names = append(names, item.Name)
	}
	return strings.Join(names, ",")
}

func init() {
	rootCmd.AddCommand(gaqCmd)
	gaqCmd.AddCommand(gaqSummaryCmd)
	gaqCmd.AddCommand(gaqDetectorsCmd)
	gaqCmd.AddCommand(gaqSetDetectorsCmd)
	gaqCmd.AddCommand(gaqDefaultDetectorsCmd)
	gaqCmd.AddCommand(passSummariesCmd)

	for _, c := range []*cobra.Command{gaqSummaryCmd, gaqDetectorsCmd, gaqSetDetectorsCmd, gaqDefaultDetectorsCmd} {
		c.Flags().Int64("data-pass", 0, "Data pass id")
		c.Flags().Int64("run", 0, "Run number")
		_ = c.MarkFlagRequired("data-pass")
	}
	gaqSummaryCmd.Flags().Bool("mc-reproducible-as-not-bad", false, "Count MC-reproducible bad flags as not bad")
	for _, c := range []*cobra.Command{gaqDetectorsCmd, gaqSetDetectorsCmd, gaqDefaultDetectorsCmd} {
		_ = c.MarkFlagRequired("run")
	}

	gaqSetDetectorsCmd.Flags().Int64Slice("detector", nil, "Detector ids")
	gaqSetDetectorsCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
	gaqDefaultDetectorsCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")

	addScopeFlags(passSummariesCmd)
	passSummariesCmd.Flags().Bool("mc-reproducible-as-not-bad", false, "Count MC-reproducible bad flags as not bad")
}
