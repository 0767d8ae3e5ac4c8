package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orgmap.org/internal/auth"
	"orgmap.org/internal/authz"
	"orgmap.org/internal/directory"
	"orgmap.org/internal/httpapi"
	"orgmap.org/internal/moderation"
	"orgmap.org/internal/notify"
	"orgmap.org/internal/obs"
	"orgmap.org/internal/store/pg"
	"orgmap.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		dirStore directory.Store
		users    auth.UserStore
		records  moderation.RecordStore
		probe    httpapi.ReadyProbe
		closeDB  = func() {}
	)
	if dsn := os.Getenv("ORGMAP_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		dirStore = store
		users = store
		records = store.Records()
		probe = httpapi.ReadyProbe{DB: store.DB()}
		closeDB = func() { _ = store.Close() }
	} else {
		// in-memory fallback for local development
		mem := directory.NewInMemory()
		dirStore = mem
		users = noUsers{}
		records = moderation.NewInMemoryRecords()
	}

	authorizer := authz.New(dirStore)
	events := stream.New()
	workflow := moderation.NewWorkflow(
		moderation.NewGate(dirStore, authorizer),
		moderation.NewHandlers(dirStore),
		records,
		authorizer,
		notify.Multi{notify.LogNotifier{}, notify.StreamNotifier{Stream: events}},
	)

	api := httpapi.New(probe, version, workflow, authorizer,
		auth.NewSessionProvider(dirStore), users, events)

	handler := httpapi.Logging(
		httpapi.SecurityHeaders(
			httpapi.CORS(
				httpapi.RateLimit(
					httpapi.MaxBodyBytes(api.Handler(), 1<<20),
					50, 25))))

	addr := os.Getenv("ORGMAP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting orgmap-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeDB()
	log.Println("Stopped")
}

// noUsers rejects every login; the in-memory mode has no credential source.
type noUsers struct{}

func (noUsers) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	return directory.User{}, directory.ErrNotFound
}
