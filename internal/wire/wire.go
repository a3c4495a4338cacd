// Package wire provides dependency injection for the sidebar application.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/example/sidebar/internal/adapters/sqlite"
	"github.com/example/sidebar/internal/app"
	"github.com/example/sidebar/internal/config"
	"github.com/example/sidebar/internal/db"
	"github.com/example/sidebar/internal/ports/primary"
)

var (
	orchestratorService primary.OrchestratorService
	crossRefService     primary.CrossRefService
	projectionService   primary.ProjectionService
	verifyService       primary.VerifyService
	auditService        primary.AuditService
	once                sync.Once
)

// OrchestratorService returns the singleton OrchestratorService instance.
func OrchestratorService() primary.OrchestratorService {
	once.Do(initServices)
	return orchestratorService
}

// CrossRefService returns the singleton CrossRefService instance.
func CrossRefService() primary.CrossRefService {
	once.Do(initServices)
	return crossRefService
}

// ProjectionService returns the singleton ProjectionService instance.
func ProjectionService() primary.ProjectionService {
	once.Do(initServices)
	return projectionService
}

// VerifyService returns the singleton VerifyService instance.
func VerifyService() primary.VerifyService {
	once.Do(initServices)
	return verifyService
}

// AuditService returns the singleton AuditService instance.
func AuditService() primary.AuditService {
	once.Do(initServices)
	return auditService
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	dir, err := config.ConfigDir()
	if err != nil {
		log.Fatalf("failed to locate config: %v", err)
	}
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.DBPath != "" {
		db.SetDBPath(cfg.DBPath)
	}

	exists, err := db.Exists()
	if err != nil {
		log.Fatalf("failed to check database: %v", err)
	}
	fresh := !exists

	for {
		database, err := db.GetDB()
		if err != nil {
			log.Fatalf("failed to initialize database: %v", err)
		}

		// Secondary port adapters with injected DB.
		store := sqlite.NewContextStore(database)
		auditLog := sqlite.NewAuditLog(database)
		session := sqlite.NewSessionStore(database)
		convs := sqlite.NewConversationMap(database)

		// Services (primary port implementations). The orchestrator owns the
		// in-memory state; the cross-ref and projection services share it.
		orch := app.NewOrchestratorService(store, session, convs, app.NewEmergencyCache(), cfg)
		if err := orch.Load(context.Background()); err != nil {
			// A store that exists but cannot be loaded is never discarded
			// silently. The operator decides.
			switch promptLoadFailure(err) {
			case "r":
				continue
			case "f":
				if err := quarantineStore(); err != nil {
					log.Fatalf("failed to move corrupt store aside: %v", err)
				}
				fresh = true
				continue
			default:
				fmt.Fprintln(os.Stderr, "Aborted.")
				os.Exit(1)
			}
		}

		if fresh {
			fmt.Fprintln(os.Stderr, "Fresh start: created a new context store")
		}

		orchestratorService = orch
		crossRefService = app.NewCrossRefService(orch)
		projectionService = app.NewProjectionService(orch)
		verifyService = app.NewVerifyService(store, auditLog)
		auditService = app.NewAuditService(orch, auditLog)

		startupSpotCheck()
		return
	}
}

// promptLoadFailure reports a failed store load and asks what to do. Any
// answer but r or f aborts.
func promptLoadFailure(loadErr error) string {
	fmt.Fprintf(os.Stderr, "Context store failed to load: %v\n", loadErr)
	fmt.Fprint(os.Stderr, "[r]etry, start [f]resh (moves the store aside), or [a]bort? ")
	var choice string
	fmt.Scanln(&choice)
	return strings.ToLower(strings.TrimSpace(choice))
}

// quarantineStore renames the database file out of the way so the next open
// starts empty. The data is kept for manual recovery.
func quarantineStore() error {
	path, err := db.GetDBPath()
	if err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}
	quarantined := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, quarantined); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Moved unreadable store to %s\n", quarantined)
	return nil
}

// startupSpotCheck runs the cheap count comparison on every start and warns
// when the log and the snapshots disagree. Discrepancies are reported, not
// repaired.
func startupSpotCheck() {
	report, err := verifyService.SpotCheck(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: startup spot check failed: %v\n", err)
		return
	}
	if n := len(report.Discrepancies); n > 0 {
		fmt.Fprintf(os.Stderr, "warning: audit log and snapshots disagree (%d discrepancies); run 'sb verify --full'\n", n)
	}
}
