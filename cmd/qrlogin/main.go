// Command qrlogin runs one QR login from the terminal: it writes the QR code
// to a PNG file, polls until the login finishes and saves the cookie.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/Conte777/douyin-gateway/config"
	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/entities"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/browser"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/cookiestore"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/logger"
	"github.com/Conte777/douyin-gateway/internal/infrastructure/qrlogin"
)

const exitInterrupted = 130

func main() {
	os.Exit(run())
}

func run() int {
	var (
		envFile  = pflag.String("env-file", "", "env file to load config from and save the cookie to (default $ENV_FILE or .env)")
		out      = pflag.String("out", "qrcode.png", "where to write the QR code image")
		interval = pflag.Duration("interval", 2*time.Second, "status poll interval")
		headless = pflag.Bool("headless", true, "run the browser without a window")
	)
	pflag.Parse()

	if *envFile != "" {
		os.Setenv("ENV_FILE", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if pflag.CommandLine.Changed("headless") {
		cfg.Browser.Headless = *headless
	}

	log := logger.New(cfg.Logging.Level)

	store, closeStore, err := cookiestore.Open(&cfg.CookieStore, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open cookie store")
		return 1
	}
	defer closeStore()

	settings := qrlogin.DefaultSettings()
	settings.SessionTTL = cfg.QRLogin.SessionTTL
	settings.SetupTimeout = cfg.QRLogin.SetupTimeout
	settings.PollTimeout = cfg.QRLogin.PollTimeout
	settings.Retention = cfg.QRLogin.Retention
	settings.MaxSessions = 1

	manager := qrlogin.NewManager(browser.NewDriver(&cfg.Browser, log), store, settings, log)
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Opening the login page...")
	session, err := manager.StartSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get QR code")
		return 1
	}

	if err := os.WriteFile(*out, session.QRImage, 0o644); err != nil {
		log.Error().Err(err).Str("path", *out).Msg("Failed to write QR code")
		cancel(manager, session.Token, log)
		return 1
	}
	fmt.Printf("QR code saved to %s\nScan it with the Douyin app before %s\n",
		*out, session.ExpiresAt.Format(time.Kitchen))

	return wait(ctx, manager, session, *interval, log)
}

// wait polls until the session is terminal and maps its outcome to an exit code
func wait(ctx context.Context, manager *qrlogin.Manager, session *entities.LoginSession, interval time.Duration, log zerolog.Logger) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := session.Message
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted, cancelling login")
			cancel(manager, session.Token, log)
			return exitInterrupted

		case <-ticker.C:
			snapshot, err := manager.Poll(ctx, session.Token)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Error().Err(err).Msg("Status check failed")
				return 1
			}

			if snapshot.Message != last {
				fmt.Printf("[%s] %s\n", snapshot.Status, snapshot.Message)
				last = snapshot.Message
			}

			if !snapshot.IsTerminal() {
				continue
			}
			if snapshot.Status == entities.StatusConfirmed {
				fmt.Printf("Logged in, cookie with %d fields saved\n", len(entities.CookieNames(snapshot.Credential)))
				return 0
			}
			return 1
		}
	}
}

func cancel(manager *qrlogin.Manager, token string, log zerolog.Logger) {
	if _, err := manager.Cancel(context.Background(), token); err != nil {
		log.Warn().Err(err).Msg("Failed to cancel login session")
	}
}
