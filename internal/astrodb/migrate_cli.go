package astrodb

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// RunMigrateCommand dispatches the 'migrate' CLI subcommands. The
// archive is opened without schema initialization so the migration
// files stay the only authority over the schema.
func RunMigrateCommand(args []string, dbPath, migrationsDir string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	database, err := Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		handleMigrateUp(database, migrationsDir)

	case "down":
		handleMigrateDown(database, migrationsDir)

	case "status":
		handleMigrateStatus(database, migrationsDir)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: gradient-report migrate force <version_number>")
		}
		handleMigrateForce(database, migrationsDir, args[1])

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func handleMigrateUp(database *AstroDB, migrationsDir string) {
	log.Println("Applying pending migrations...")
	if err := database.MigrateUp(migrationsDir); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✓ Schema is current")
	logSchemaVersion(database, migrationsDir)
}

func handleMigrateDown(database *AstroDB, migrationsDir string) {
	log.Println("Rolling back the newest migration...")
	if err := database.MigrateDown(migrationsDir); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("✓ Rollback complete")
	logSchemaVersion(database, migrationsDir)
}

// logSchemaVersion reports where the schema landed after an up or down.
func logSchemaVersion(database *AstroDB, migrationsDir string) {
	version, dirty, err := database.MigrateVersion(migrationsDir)
	if err != nil {
		log.Printf("Schema version unavailable: %v", err)
		return
	}
	if dirty {
		log.Printf("Schema version: %d (dirty)", version)
		return
	}
	log.Printf("Schema version: %d", version)
}

func handleMigrateStatus(database *AstroDB, migrationsDir string) {
	version, dirty, err := database.MigrateVersion(migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}
	latest, err := LatestMigrationVersion(migrationsDir)
	if err != nil {
		log.Fatalf("Failed to scan migration files: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Println()

	switch {
	case dirty:
		fmt.Println("⚠️  A migration stopped partway. Inspect the database, repair it,")
		fmt.Println("then run: gradient-report migrate force <version>")
	case version < latest:
		fmt.Printf("⚠️  %d migration(s) pending. Run 'gradient-report migrate up' to apply them.\n", latest-version)
	default:
		fmt.Println("✓ Database is up to date")
	}
}

func handleMigrateForce(database *AstroDB, migrationsDir, versionStr string) {
	forceVersion, err := strconv.Atoi(versionStr)
	if err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("⚠️  This overwrites the recorded version with %d without running migrations.\n", forceVersion)
	fmt.Println("Use it only to clear a dirty state left by a failed migration.")
	fmt.Print("Continue? [y/N]: ")

	var answer string
	fmt.Scanln(&answer)
	if !strings.EqualFold(answer, "y") {
		log.Println("Aborted")
		return
	}

	if err := database.MigrateForce(migrationsDir, forceVersion); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("✓ Version record set to %d", forceVersion)
}

// PrintMigrateHelp displays usage for the migrate subcommands.
func PrintMigrateHelp() {
	fmt.Println("Manage the run archive schema.")
	fmt.Println()
	fmt.Println("Usage: gradient-report migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up          Apply every pending migration")
	fmt.Println("  down        Roll back the newest migration")
	fmt.Println("  status      Report current, latest, and dirty state")
	fmt.Println("  force <N>   Overwrite the version record with N (recovery only)")
	fmt.Println("  help        Show this message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  gradient-report migrate up")
	fmt.Println("  gradient-report migrate status")
	fmt.Println("  gradient-report migrate force 1")
}
