package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/roadmetrics/countline/internal/api"
	"github.com/roadmetrics/countline/internal/config"
	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/preset"
	"github.com/roadmetrics/countline/internal/report"
	"github.com/roadmetrics/countline/internal/session"
	"github.com/roadmetrics/countline/internal/store"
	"github.com/roadmetrics/countline/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbFile      = flag.String("db", "countline.db", "Path to the SQLite database")
	presetPath  = flag.String("preset", "", "Path to a preset JSON file (boundaries and tuning)")
	tuningPath  = flag.String("tuning", "", "Path to a tuning JSON file (overrides preset tuning)")
	replayPath  = flag.String("replay", "", "Path to a JSONL detection capture to replay")
	sessionName = flag.String("session-name", "", "Name for the recorded session")
	migrateDir  = flag.String("migrate", "", "Apply migrations from this directory before starting")
	reportPath  = flag.String("report", "", "Render an HTML report to this file and exit")
	reportSess  = flag.String("report-session", "", "Session to report on (default: most recent)")
)

func main() {
	flag.Parse()

	log.Printf("countline %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	db, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *migrateDir != "" {
		if err := db.MigrateUp(*migrateDir); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	if *reportPath != "" {
		if err := writeReport(db, *reportSess, *reportPath); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runner *session.Runner
	var wg sync.WaitGroup

	if *replayPath != "" {
		if *presetPath == "" {
			log.Fatal("Replay requires a preset (-preset)")
		}

		p, err := preset.Load(*presetPath)
		if err != nil {
			log.Fatalf("Failed to load preset: %v", err)
		}

		trackerCfg := p.TrackerConfig()
		runnerCfg := session.DefaultConfig()
		if *tuningPath != "" {
			tuning, err := config.LoadTuningConfig(*tuningPath)
			if err != nil {
				log.Fatalf("Failed to load tuning config: %v", err)
			}
			trackerCfg = counting.TrackerConfig{
				HitsToConfirm:      tuning.GetHitsToConfirm(),
				MaxMisses:          tuning.GetMaxMisses(),
				HistorySize:        tuning.GetHistorySize(),
				LabelWindow:        tuning.GetLabelWindow(),
				IoUCostCeiling:     tuning.GetIoUCostCeiling(),
				CreationConfidence: tuning.GetCreationConfidence(),
				MaxTracks:          tuning.GetMaxTracks(),
			}
			policy, err := session.ParsePolicy(tuning.GetQueuePolicy())
			if err != nil {
				log.Fatalf("Invalid queue policy: %v", err)
			}
			runnerCfg = session.Config{
				QueueCapacity: tuning.GetQueueCapacity(),
				Policy:        policy,
				FlushInterval: tuning.GetFlushInterval(),
			}
		}

		boundaries := p.Boundaries()
		sess, err := db.CreateSession(*sessionName, p.ID, time.Now(), boundaries)
		if err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
		log.Printf("Recording session %s (%q) with %d boundaries", sess.ID, sess.Name, len(boundaries))

		engine := counting.NewEngine(counting.EngineConfig{Tracker: trackerCfg})
		runner = session.NewRunner(runnerCfg, engine, db)

		runCtx, cancelRun := context.WithCancel(ctx)
		if err := runner.Start(runCtx, sess.ID, boundaries); err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancelRun()

			frames, err := session.ReplayFile(runCtx, runner, *replayPath)
			if err != nil {
				log.Printf("Replay stopped: %v", err)
			}
			cancelRun()
			if err := runner.Wait(); err != nil {
				log.Printf("Session runner failed: %v", err)
			}

			if err := db.RollupDaily(sess.ID); err != nil {
				log.Printf("Failed to roll up daily summaries: %v", err)
			}
			if err := db.CloseSession(sess.ID, time.Now()); err != nil {
				log.Printf("Failed to close session: %v", err)
			}
			snap := runner.Snapshot()
			log.Printf("Replay complete: %d frames processed, %d dropped, %d events",
				frames, snap.DroppedFrames, snap.TotalEvents)
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(db, runner).ServeMux()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// writeReport renders the hourly chart for a session to an HTML file. An
// empty sessionID selects the most recent session.
func writeReport(db *store.DB, sessionID, path string) error {
	if sessionID == "" {
		sessions, err := db.ListSessions(1)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return fmt.Errorf("no sessions recorded")
		}
		sessionID = sessions[0].ID
	}

	sess, err := db.GetSession(sessionID)
	if err != nil {
		return err
	}
	hourly, err := db.HourlyCounts(sessionID)
	if err != nil {
		return err
	}

	title := sess.Name
	if title == "" {
		title = sess.ID
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := report.RenderHourly(f, title, hourly); err != nil {
		return err
	}
	log.Printf("Report for session %s written to %s", sessionID, path)
	return nil
}
