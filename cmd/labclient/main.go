package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/config"
	"labreserve-client/internal/dispatch"
	httpapi "labreserve-client/internal/http"
	"labreserve-client/internal/push"
	"labreserve-client/internal/services"
	"labreserve-client/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cleanupLogs, err := setupLogger(cfg.LogDir, cfg.LogRetentionDays)
	if err != nil {
		log.Printf("logger setup failed: %v", err)
	} else {
		defer cleanupLogs()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.HTTPTimeout}, nil)
	store := session.NewStore(cfg.SessionFile, client)
	subscriber := push.NewSubscriber(push.Options{
		URL:         cfg.PushURL,
		MaxAttempts: cfg.PushMaxAttempts,
		BaseDelay:   cfg.PushReconnectDelay,
		MaxDelay:    cfg.PushReconnectDelayMax,
		PongWait:    cfg.PushPongWait,
	}, store.Token)

	hub := services.NewStatusHub()
	go hub.Run(ctx)

	dispatcher := dispatch.New(store)
	server := httpapi.NewServer(cfg, client, dispatcher, subscriber, hub)
	go func() {
		state := dispatcher.Resolve(ctx)
		log.Printf("session resolved: %s", state)
	}()
	if cfg.DiagnosticsInterval > 0 {
		go diagnosticsLoop(ctx, server, cfg.DiagnosticsInterval)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("listening on %s (api %s, push %s)", cfg.ListenAddr, cfg.APIBaseURL, cfg.PushURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	server.Shutdown()
	dispatcher.Close()
	log.Printf("shutdown complete")
}

func setupLogger(logDir string, retentionDays int) (func(), error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	currentDate := time.Now().Format("2006-01-02")
	file, err := openLogFile(logDir, currentDate)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	cleanupOldLogs(logDir, retentionDays)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				date := time.Now().Format("2006-01-02")
				mu.Lock()
				if date != currentDate {
					newFile, err := openLogFile(logDir, date)
					if err == nil {
						log.SetOutput(io.MultiWriter(os.Stdout, newFile))
						_ = file.Close()
						file = newFile
						currentDate = date
						cleanupOldLogs(logDir, retentionDays)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		mu.Lock()
		_ = file.Close()
		mu.Unlock()
	}, nil
}

func openLogFile(logDir, date string) (*os.File, error) {
	filename := filepath.Join(logDir, fmt.Sprintf("labclient-%s.log", date))
	return os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func cleanupOldLogs(logDir string, retentionDays int) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.HasPrefix(name, "labclient-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		datePart := strings.TrimSuffix(strings.TrimPrefix(name, "labclient-"), ".log")
		logDate, err := time.Parse("2006-01-02", datePart)
		if err != nil {
			continue
		}
		if logDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(logDir, name))
		}
	}
}

// diagnosticsLoop logs a process sample periodically so a stuck push channel
// or leaked views show up in the log.
func diagnosticsLoop(ctx context.Context, server *httpapi.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			openViews := 0
			if ws, ok := server.Workspace(); ok {
				openViews = ws.OpenViews()
			}
			sample := services.CaptureDiagnostics(server.Push.Connected(), openViews)
			log.Printf("diagnostics: state=%s push=%t views=%d goroutines=%d rss=%d",
				server.Dispatcher.State(), sample.PushConnected, sample.OpenViews, sample.Goroutines, sample.ProcessRSSBytes)
		case <-ctx.Done():
			return
		}
	}
}
