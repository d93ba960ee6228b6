package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/draftroom/draftroom/internal/carddb"
	"github.com/draftroom/draftroom/internal/httpapi"
	"github.com/draftroom/draftroom/internal/hub"
	"github.com/draftroom/draftroom/internal/logging"
	"github.com/draftroom/draftroom/internal/server"
)

const serverVersion = "0.9.0"

// Exit codes.
const (
	exitOK = iota
	exitUsage
	exitCardData
	exitListen
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load an optional .env file into the process environment; flag values
	// come only from the command line.
	_ = godotenv.Load()

	var (
		port              = pflag.Int("port", 0, "TCP listen port (required)")
		cardDataPath      = pflag.String("card-data", "", "path to the sqlite card database (required)")
		announcementsPath = pflag.String("announcements-file", "", "announcements notice file, reread on SIGHUP")
		alertsPath        = pflag.String("alerts-file", "", "alerts notice file, reread on SIGHUP")
		httpPort          = pflag.Int("http-port", 0, "optional HTTP port for /healthz, /status and /ws")
		serverName        = pflag.String("server-name", "draftroom", "server name sent in greetings")
		logLevel          = pflag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	pflag.Parse()

	if *port == 0 || *cardDataPath == "" {
		fmt.Fprintln(os.Stderr, "usage:")
		pflag.PrintDefaults()
		return exitUsage
	}

	log, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	defer log.Sync()

	db, err := carddb.OpenSQLite(*cardDataPath, log.Named("carddb"))
	if err != nil {
		log.Error("card database load failed", zap.Error(err))
		return exitCardData
	}
	defer db.Close()

	announcements, err := hub.LoadNotice(*announcementsPath)
	if err != nil {
		log.Warn("announcements file unreadable", zap.Error(err))
	}
	alerts, err := hub.LoadNotice(*alertsPath)
	if err != nil {
		log.Warn("alerts file unreadable", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(ctx, db, *serverName, serverVersion, log.Named("hub"),
		hub.WithNotices(announcements, alerts))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Error("listen failed", zap.Int("port", *port), zap.Error(err))
		return exitListen
	}
	log.Info("listening", zap.Int("port", *port))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.NewTCPServer(h, log.Named("tcp")).Serve(ctx, ln)
	})

	if *httpPort != 0 {
		httpLn, err := net.Listen("tcp", fmt.Sprintf(":%d", *httpPort))
		if err != nil {
			log.Error("http listen failed", zap.Int("port", *httpPort), zap.Error(err))
			return exitListen
		}
		log.Info("http listening", zap.Int("port", *httpPort))

		srv := &http.Server{Handler: httpapi.SetupRoutes(h, log.Named("http"))}
		g.Go(func() error {
			err := srv.Serve(httpLn)
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	// Reread notice files on SIGHUP.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				log.Info("SIGHUP: rereading notice files")
				announcements, err := hub.LoadNotice(*announcementsPath)
				if err != nil {
					log.Warn("announcements file unreadable", zap.Error(err))
					continue
				}
				alerts, err := hub.LoadNotice(*alertsPath)
				if err != nil {
					log.Warn("alerts file unreadable", zap.Error(err))
					continue
				}
				h.Inbox() <- hub.UpdateNotices{Announcements: announcements, Alerts: alerts}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", zap.Error(err))
		return exitListen
	}
	return exitOK
}
