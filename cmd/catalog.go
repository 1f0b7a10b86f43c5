package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/usecase/qcflag"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage runs, detectors and passes",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a catalog document (runs, detectors, passes, flag types, GAQ detectors)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path := cmd.Flags().Arg(0)
		raw, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrapf(err, "read catalog file %q", path)
		}
		doc, err := qcflag.ParseCatalog(raw)
		if err != nil {
			return err
		}

		actor, _ := cmd.Flags().GetInt64("actor")
		report, err := svc.ImportCatalog(ctx, doc, actor)
		if err != nil {
			logging.Error(ctx, "import catalog failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "import catalog")
		}

		return writeOutput(cmd, report, func(w io.Writer) error {
			_, err := fmt.Fprintf(w,
				"detectors\t%d\nruns created\t%d\nruns reconciled\t%v\ndata passes\t%d\nsimulation passes\t%d\nflag types created\t%d\ngaq detector sets\t%d\n",
				report.Detectors,
				report.RunsCreated,
				report.RunsReconciled,
				report.DataPasses,
				report.SimulationPasses,
				report.FlagTypesCreated,
				report.GaqDetectorSets,
			)
			return err
		})
	}),
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogImportCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
}
