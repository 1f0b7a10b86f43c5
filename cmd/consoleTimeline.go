package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/usecase/qcflag"
	"qcflags/internal/usecase/timelineconsole"
)

var consoleTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Browse, verify and discard the QC flags of a run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		runNumber, _ := cmd.Flags().GetInt64("run")
		actor, _ := cmd.Flags().GetInt64("actor")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 10 * time.Second
		}

		model := timelineconsole.NewTimelineModel(ctx, svc, timelineconsole.TimelineOptions{
			RunNumber:        runNumber,
			DataPassID:       optionalInt64(cmd, "data-pass"),
			SimulationPassID: optionalInt64(cmd, "simulation-pass"),
			ActorID:          actor,
			RefreshInterval:  refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run timeline console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleTimelineCmd)
	consoleTimelineCmd.Flags().Int64("run", 0, "Run number")
	consoleTimelineCmd.Flags().Int64("actor", 1, "User id used for verify and discard")
	consoleTimelineCmd.Flags().Duration("refresh-interval", 10*time.Second, "Auto refresh interval")
	addScopeFlags(consoleTimelineCmd)
	_ = consoleTimelineCmd.MarkFlagRequired("run")
}
