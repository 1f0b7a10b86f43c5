package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"qcflags/internal/bootstrap"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
	"qcflags/internal/usecase/qcflag"
)

var flagTypeCmd = &cobra.Command{
	Use:   "flag-type",
	Short: "Manage the QC flag type catalog",
}

var flagTypeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a flag type",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		name, _ := cmd.Flags().GetString("name")
		method, _ := cmd.Flags().GetString("method")
		bad, _ := cmd.Flags().GetBool("bad")
		color, _ := cmd.Flags().GetString("color")
		mcReproducible, _ := cmd.Flags().GetBool("mc-reproducible")
		actor, _ := cmd.Flags().GetInt64("actor")

		flagType, err := svc.CreateFlagType(ctx, qcflag.CreateFlagTypeInput{
			Name:           name,
			Method:         method,
			Bad:            bad,
			Color:          color,
			MCReproducible: mcReproducible,
			ActorID:        actor,
		})
		if err != nil {
			logging.Error(ctx, "create flag type failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create flag type")
		}
		return writeFlagTypes(cmd, []ports.FlagType{flagType})
	}),
}

var flagTypeArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive a flag type so it cannot be used by new flags",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, _ := cmd.Flags().GetInt64("id")
		actor, _ := cmd.Flags().GetInt64("actor")
		flagType, err := svc.ArchiveFlagType(ctx, id, actor)
		if err != nil {
			logging.Error(ctx, "archive flag type failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "archive flag type")
		}
		return writeFlagTypes(cmd, []ports.FlagType{flagType})
	}),
}

var flagTypeUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change the name, method, badness or color of a flag type",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, _ := cmd.Flags().GetInt64("id")
		actor, _ := cmd.Flags().GetInt64("actor")
		flagType, err := svc.UpdateFlagType(ctx, qcflag.UpdateFlagTypeInput{
			FlagTypeID: id,
			Name:       optionalString(cmd, "name"),
			Method:     optionalString(cmd, "method"),
			Bad:        optionalBool(cmd, "bad"),
			Color:      optionalString(cmd, "color"),
			ActorID:    actor,
		})
		if err != nil {
			logging.Error(ctx, "update flag type failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "update flag type")
		}
		return writeFlagTypes(cmd, []ports.FlagType{flagType})
	}),
}

var flagTypeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flag types",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *qcflag.Service) error {
		types, err := svc.ListFlagTypes(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "list flag types")
		}
		return writeFlagTypes(cmd, types)
	}),
}

func writeFlagTypes(cmd *cobra.Command, types []ports.FlagType) error {
	return writeOutput(cmd, types, func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, "ID\tNAME\tMETHOD\tBAD\tMC\tCOLOR\tARCHIVED"); err != nil {
			return err
		}
		for _, item := range types {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\t%t\n",
				item.ID, item.Name, item.Method, item.Bad, item.MCReproducible, item.Color, item.Archived()); err != nil {
				return err
			}
		}
		return nil
	})
}

func init() {
	rootCmd.AddCommand(flagTypeCmd)
	flagTypeCmd.AddCommand(flagTypeCreateCmd)
	flagTypeCmd.AddCommand(flagTypeArchiveCmd)
	flagTypeCmd.AddCommand(flagTypeUpdateCmd)
	flagTypeCmd.AddCommand(flagTypeListCmd)

	flagTypeCreateCmd.Flags().String("name", "", "Display name")
	flagTypeCreateCmd.Flags().String("method", "", "Unique method identifier")
	flagTypeCreateCmd.Flags().Bool("bad", false, "Flags of this type mark data as bad")
	flagTypeCreateCmd.Flags().String("color", "", "Display color (default by bad)")
	flagTypeCreateCmd.Flags().Bool("mc-reproducible", false, "Bad quality is reproducible in Monte-Carlo")
	flagTypeCreateCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
	_ = flagTypeCreateCmd.MarkFlagRequired("name")
	_ = flagTypeCreateCmd.MarkFlagRequired("method")

	flagTypeArchiveCmd.Flags().Int64("id", 0, "Flag type id")
	flagTypeArchiveCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
	_ = flagTypeArchiveCmd.MarkFlagRequired("id")

	flagTypeUpdateCmd.Flags().Int64("id", 0, "Flag type id")
	flagTypeUpdateCmd.Flags().String("name", "", "New display name")
	flagTypeUpdateCmd.Flags().String("method", "", "New method identifier")
	flagTypeUpdateCmd.Flags().Bool("bad", false, "Flags of this type mark data as bad")
	flagTypeUpdateCmd.Flags().String("color", "", "New display color")
	flagTypeUpdateCmd.Flags().Int64("actor", 1, "User id recorded in the audit trail")
	_ = flagTypeUpdateCmd.MarkFlagRequired("id")
}
