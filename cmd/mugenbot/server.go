package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mugen-GS/MUGEN-STORE/internal/api"
	"github.com/Mugen-GS/MUGEN-STORE/internal/composer"
	"github.com/Mugen-GS/MUGEN-STORE/internal/config"
	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
	"github.com/Mugen-GS/MUGEN-STORE/internal/genai"
	"github.com/Mugen-GS/MUGEN-STORE/internal/knowledge"
	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
	"github.com/Mugen-GS/MUGEN-STORE/internal/whatsapp"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the webhook server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot status and store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mugenbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rows, closeRows, err := openRowStore(cfg)
	if err != nil {
		return err
	}
	defer closeRows()

	// A failed schema init is logged, not fatal: the store may come back, and
	// the bot must keep answering with degraded context in the meantime.
	if err := rows.InitializeSchema(ctx); err != nil {
		slog.Warn("initializing store schema failed", "error", err)
	} else {
		slog.Info("row store ready", "backend", cfg.Storage.Backend)
	}

	contactStore := contacts.NewStore(rows)
	knowledgeStore := knowledge.NewStore(rows)
	comp := composer.New(persona(cfg), knowledgeStore, knowledgeStore, contactStore)
	generator := genai.NewClientWithBaseURL(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
	messenger := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneID)

	handler := api.NewRouter(api.Deps{
		Contacts:    contactStore,
		Knowledge:   knowledgeStore,
		Composer:    comp,
		Generator:   generator,
		Messenger:   messenger,
		Token:       cfg.Server.APIToken,
		VerifyToken: cfg.WhatsApp.VerifyToken,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mugenbot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRowStore picks the persistence backend from config.
func openRowStore(cfg config.Config) (rowstore.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := rowstore.OpenSQLite(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
			}
		}, nil
	default:
		return rowstore.NewAppsScriptClient(cfg.Sheets.AppsScriptURL), func() {}, nil
	}
}

func persona(cfg config.Config) composer.Identity {
	id := composer.DefaultIdentity()
	if cfg.Persona.VoiceName != "" {
		id.VoiceName = cfg.Persona.VoiceName
	}
	if cfg.Persona.Preamble != "" {
		id.Preamble = cfg.Persona.Preamble
	}
	if cfg.Persona.Marker != "" {
		id.Marker = cfg.Persona.Marker
	}
	if cfg.Persona.NegativeMarker != "" {
		id.NegativeMarker = cfg.Persona.NegativeMarker
	}
	return id
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Model", "%s", cfg.Gemini.Model)

	if resp != nil && resp.StatusCode == 200 {
		apiClient := newAPIClient(cfg)
		var stats map[string]int
		if err := apiClient.getJSON(context.Background(), "/api/stats", &stats); err == nil {
			printStatus("Contacts", "%d", stats["totalContacts"])
			printStatus("Knowledge items", "%d", stats["memoryItems"])
			printStatus("Training examples", "%d", stats["trainingExamples"])
		}
	}
	return nil
}
