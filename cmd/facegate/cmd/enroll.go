package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/facegate/internal/config"
	"github.com/BrandonDHaskell/facegate/internal/db"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store/file"
	"github.com/BrandonDHaskell/facegate/internal/facegate/store/sqlite"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage the enrollment table in the SQLite store",
	Long: `Manage the label -> name enrollment table kept in FACEGATE_DB_PATH.

Labels must match the ones the classifier model was trained with.  Run
serve with FACEGATE_ENROLLMENT_STORE=sqlite to use this table.`,
}

var enrollImportCmd = &cobra.Command{
	Use:   "import <face_names.yaml>",
	Short: "Import a name: label mapping file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(conn *sql.DB, w *db.Worker) error {
			enrollment, err := file.NewEnrollmentFile(args[0]).Enrollment(cmd.Context())
			if err != nil {
				return err
			}
			n, err := db.SeedEnrollment(cmd.Context(), w, enrollment)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d identities from %s\n", n, args[0])
			return nil
		})
	},
}

var enrollAddCmd = &cobra.Command{
	Use:   "add <name> <label>",
	Short: "Enroll a name under a classifier label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := strconv.Atoi(args[1])
		if err != nil || label < 0 {
			return fmt.Errorf("label must be a non-negative integer, got %q", args[1])
		}
		return withStore(cmd.Context(), func(conn *sql.DB, w *db.Worker) error {
			if err := sqlite.NewIdentityStore(conn, w).Enroll(cmd.Context(), args[0], label, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s as label %d\n", args[0], label)
			return nil
		})
	},
}

var enrollRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an enrolled name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(conn *sql.DB, w *db.Worker) error {
			if err := sqlite.NewIdentityStore(conn, w).Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		})
	},
}

var enrollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(conn *sql.DB, w *db.Worker) error {
			return printIdentities(cmd.Context(), cmd.OutOrStdout(), sqlite.NewIdentityStore(conn, w), config.FromEnv().Authorized)
		})
	},
}

func init() {
	enrollCmd.AddCommand(enrollImportCmd, enrollAddCmd, enrollRemoveCmd, enrollListCmd)
	rootCmd.AddCommand(enrollCmd)
}

func withStore(ctx context.Context, fn func(conn *sql.DB, w *db.Worker) error) error {
	conn, err := db.Open(ctx, db.Config{Path: config.FromEnv().DBPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	w := db.NewWorker(conn)
	defer w.Close()

	return fn(conn, w)
}

// printIdentities writes a label-ordered table; authorized names are green.
func printIdentities(ctx context.Context, out io.Writer, s store.IdentityStore, authorized []string) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No identities enrolled")
		return nil
	}

	allowed := make(map[string]struct{}, len(authorized))
	for _, n := range authorized {
		allowed[n] = struct{}{}
	}
	green := color.New(color.FgGreen).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tNAME\tAUTHORIZED\tENROLLED")
	for _, id := range ids {
		auth := dim("no")
		if _, ok := allowed[id.Name]; ok {
			auth = green("yes")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", id.Label, id.Name, auth, id.EnrolledAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
