package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/marshallshelly/blogstore/cmd/blogctl/output"
	"github.com/marshallshelly/blogstore/cmd/blogctl/tui"
	"github.com/marshallshelly/blogstore/internal/blog"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/spf13/cobra"
)

var (
	// Migrate flags
	dryRun      bool
	all         bool
	upSteps     int
	downSteps   int
	target      string
	interactive bool
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run the migrations embedded in blogctl against the database.

Subcommands:
  up      - Apply pending migrations
  down    - Rollback migrations
  status  - Show migration status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Apply pending migrations in version order.

Examples:
  blogctl migrate up --all              # Apply all pending migrations
  blogctl migrate up --steps 1          # Apply the next migration
  blogctl migrate up --all --dry-run    # Preview without applying
  blogctl migrate up -i                 # Pick migrations interactively`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateUp(cmd.Context())
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback migrations",
	Long: `Rollback applied migrations, newest first.

Examples:
  blogctl migrate down                  # Rollback the last migration
  blogctl migrate down --steps 2        # Rollback the last two
  blogctl migrate down --target 0001    # Rollback everything after 0001
  blogctl migrate down --dry-run        # Preview without executing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateDown(cmd.Context())
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Show every migration with its status (pending, applied, failed).

Examples:
  blogctl migrate status
  blogctl migrate status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateStatus(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)

	migrateUpCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run in interactive mode with TUI")
	migrateUpCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview migrations without applying")
	migrateUpCmd.Flags().BoolVar(&all, "all", false, "Apply all pending migrations")
	migrateUpCmd.Flags().IntVar(&upSteps, "steps", 0, "Number of migrations to apply")

	migrateDownCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run in interactive mode with TUI")
	migrateDownCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview rollback without executing")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to rollback")
	migrateDownCmd.Flags().StringVar(&target, "target", "", "Rollback every migration after this version")
	migrateDownCmd.MarkFlagsMutuallyExclusive("steps", "target")
}

// migrationState loads the embedded migrations and their tracked status.
func migrationState(ctx context.Context, executor *migration.Executor) ([]migration.Migration, []migration.MigrationRecord, error) {
	migrations, err := blog.Migrations()
	if err != nil {
		return nil, nil, err
	}
	if err := executor.Initialize(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	status, err := executor.Status(ctx, migrations)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get migration status: %w", err)
	}
	return migrations, status, nil
}

// upPlan returns the records of the migrations up would apply.
func upPlan(status []migration.MigrationRecord, steps int) []migration.MigrationRecord {
	var plan []migration.MigrationRecord
	for _, record := range status {
		if record.Status == migration.StatusApplied {
			continue
		}
		plan = append(plan, record)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan
}

// downPlan returns the records of the migrations down would roll back,
// newest first. A non-empty target selects every version after it.
func downPlan(status []migration.MigrationRecord, steps int, target string) []migration.MigrationRecord {
	var applied []migration.MigrationRecord
	for _, record := range status {
		if record.Status == migration.StatusApplied {
			applied = append(applied, record)
		}
	}
	slices.Reverse(applied)

	if target != "" {
		var plan []migration.MigrationRecord
		for _, record := range applied {
			if record.Version > target {
				plan = append(plan, record)
			}
		}
		return plan
	}
	return applied[:min(max(steps, 1), len(applied))]
}

func printPlan(title string, plan []migration.MigrationRecord) {
	output.Section(title)
	for _, record := range plan {
		fmt.Fprintf(output.Out, "  %s %s - %s\n", output.StatusIcon(record.Status), record.Version, record.Name)
	}
}

func runMigrateUp(ctx context.Context) error {
	if !interactive && !all && upSteps <= 0 {
		return fmt.Errorf("must specify --all or --steps")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	executor := s.executor()
	migrations, status, err := migrationState(ctx, executor)
	if err != nil {
		return err
	}

	if interactive {
		return tui.RunMigrateUI(ctx, tui.ActionUp, executor, migrations, status)
	}

	steps := upSteps
	if all {
		steps = 0
	}
	plan := upPlan(status, steps)
	if len(plan) == 0 {
		output.Info("No pending migrations")
		return nil
	}

	if dryRun {
		printPlan("DRY RUN - Preview", plan)
		return nil
	}

	output.Section("Applying Migrations")
	applied, err := executor.Up(ctx, migrations, steps)
	for _, mig := range applied {
		output.Success("Applied %s - %s", mig.Version, mig.Name)
	}
	if err != nil {
		output.Error("Migration failed: %v", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	output.Success("Successfully applied %d migration(s)", len(applied))
	return nil
}

func runMigrateDown(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	executor := s.executor()
	migrations, status, err := migrationState(ctx, executor)
	if err != nil {
		return err
	}

	if interactive {
		return tui.RunMigrateUI(ctx, tui.ActionDown, executor, migrations, status)
	}

	plan := downPlan(status, downSteps, target)
	if len(plan) == 0 {
		output.Info("No migrations to rollback")
		return nil
	}

	if dryRun {
		printPlan("DRY RUN - Preview", plan)
		return nil
	}

	output.Section("Rolling Back Migrations")
	var rolledBack []migration.Migration
	if target != "" {
		rolledBack, err = executor.RollbackTo(ctx, target, migrations)
	} else {
		rolledBack, err = executor.Down(ctx, migrations, downSteps)
	}
	for _, mig := range rolledBack {
		output.Success("Rolled back %s - %s", mig.Version, mig.Name)
	}
	if err != nil {
		output.Error("Rollback failed: %v", err)
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	output.Success("Successfully rolled back %d migration(s)", len(rolledBack))
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	_, status, err := migrationState(ctx, s.executor())
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.JSON(status)
	}

	if len(status) == 0 {
		output.Warning("No migrations found")
		return nil
	}

	return printStatus(status)
}

func printStatus(status []migration.MigrationRecord) error {
	rows := make([][]string, len(status))
	counts := make(map[migration.MigrationStatus]int)
	for i, record := range status {
		appliedAt := "N/A"
		if record.AppliedAt != nil {
			appliedAt = record.AppliedAt.Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{
			record.Version,
			record.Name,
			output.StatusIcon(record.Status) + " " + string(record.Status),
			appliedAt,
		}
		counts[record.Status]++
	}

	if err := output.Table([]string{"VERSION", "NAME", "STATUS", "APPLIED AT"}, rows); err != nil {
		return err
	}

	summary := fmt.Sprintf("Summary: %d applied, %d pending", counts[migration.StatusApplied], counts[migration.StatusPending])
	if n := counts[migration.StatusFailed]; n > 0 {
		summary += fmt.Sprintf(", %d failed", n)
	}
	fmt.Fprintln(output.Out)
	output.Muted("%s", summary)
	return nil
}
