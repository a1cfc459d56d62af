package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/CrisRain/Lumina/internal/auth"
	"github.com/CrisRain/Lumina/internal/config"
	"github.com/CrisRain/Lumina/internal/mux"
	"github.com/CrisRain/Lumina/internal/node"
	"github.com/CrisRain/Lumina/internal/server"
	"github.com/CrisRain/Lumina/internal/tlsutil"
	"github.com/CrisRain/Lumina/internal/version"
	"github.com/CrisRain/Lumina/internal/warp"
)

func main() {
	// Optional .env for local development; the container sets real env vars.
	_ = godotenv.Load()

	dataDir := config.GetEnv("WARP_DATA_DIR", "/app/data")
	cfg, err := config.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open settings store: %v", err)
	}

	gateway, tokens := buildAuth(cfg)
	warpMgr := warp.NewManager(warp.NewRunner(), cfg.Socks5Port())
	nodes := node.NewManager(cfg)
	srv := server.NewServer(cfg, gateway, warpMgr, nodes)

	panelHost := config.GetEnv("PANEL_LISTEN_HOST", "0.0.0.0")
	panelPort := config.GetEnvInt("PANEL_PORT", cfg.PanelPort())
	internalTLSPort := config.GetEnvInt("PANEL_HTTPS_INTERNAL_PORT", 8443)

	certFile, keyFile := resolveTLSMaterial(cfg, dataDir)
	useTLS := certFile != "" && keyFile != ""
	muxEnabled := useTLS && config.GetEnvBool("PANEL_HTTP_HTTPS_MUX_ENABLED", true)

	var muxListener *mux.Listener
	panelAddr := fmt.Sprintf("%s:%d", panelHost, panelPort)

	if muxEnabled {
		// The multiplexer owns the public port; the TLS terminator hides on
		// a loopback port behind it.
		panelAddr = fmt.Sprintf("127.0.0.1:%d", internalTLSPort)

		muxListener, err = mux.New(mux.Config{
			ListenHost:     panelHost,
			ListenPort:     panelPort,
			UpstreamPort:   internalTLSPort,
			RedirectStatus: config.GetEnvInt("PANEL_HTTP_REDIRECT_STATUS", 308),
			ForceDomain:    mux.ResolveForceDomain(),
		})
		if err != nil {
			log.Fatalf("Failed to configure multiplexer: %v", err)
		}

		go func() {
			if err := muxListener.ListenAndServe(); err != nil {
				log.Fatalf("Multiplexer error: %v", err)
			}
		}()
	}

	if !cfg.Initialized() {
		printSetupHint(panelHost, panelPort, useTLS)
	}

	go func() {
		if err := srv.ListenAndServe(panelAddr, certFile, keyFile); err != nil {
			log.Fatalf("%v", err)
		}
	}()

	log.Printf("🚀 Lumina panel %s starting on %s:%d", version.Get(), panelHost, panelPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("🛑 Shutting down panel...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if muxListener != nil {
		muxListener.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	tokens.Close()
	log.Println("✅ Panel stopped")
}

// buildAuth assembles the authentication gateway from the settings store and
// the environment knobs.
func buildAuth(cfg *config.Store) (*auth.Gateway, auth.TokenStore) {
	ttl := time.Duration(config.GetEnvInt("AUTH_TOKEN_TTL_SECONDS",
		int(auth.DefaultTokenTTL.Seconds()))) * time.Second
	maxAttempts := config.GetEnvInt("AUTH_MAX_LOGIN_ATTEMPTS", auth.DefaultMaxAttempts)
	window := time.Duration(config.GetEnvInt("AUTH_ATTEMPT_WINDOW_SECONDS",
		int(auth.DefaultAttemptWindow.Seconds()))) * time.Second
	cost := config.GetEnvInt("AUTH_BCRYPT_COST", auth.DefaultBcryptCost)

	tokens := auth.NewTokenStore(ttl)
	throttle := auth.NewLoginThrottle(maxAttempts, window)
	verifier := auth.NewCredentialVerifier(cfg, cost)
	return auth.NewGateway(cfg, tokens, throttle, verifier), tokens
}

// resolveTLSMaterial returns the cert/key paths the panel should serve with,
// generating a self-signed pair when configured to. Empty paths mean plain
// HTTP.
func resolveTLSMaterial(cfg *config.Store, dataDir string) (string, string) {
	if !cfg.SSLEnabled() {
		return "", ""
	}

	certFile := cfg.SSLCertFile()
	keyFile := cfg.SSLKeyFile()
	if certFile != "" && keyFile != "" {
		return certFile, keyFile
	}

	if !cfg.SSLAutoSelfSigned() {
		log.Println("⚠️  SSL enabled but no certificate configured, serving plain HTTP")
		return "", ""
	}

	certFile = filepath.Join(dataDir, "certs", "panel.crt")
	keyFile = filepath.Join(dataDir, "certs", "panel.key")
	created, err := tlsutil.EnsureSelfSigned(certFile, keyFile, cfg.SSLDomain())
	if err != nil {
		log.Printf("⚠️  Self-signed certificate generation failed: %v, serving plain HTTP", err)
		return "", ""
	}
	if created {
		log.Printf("🔒 Generated self-signed certificate for %s", cfg.SSLDomain())
	}
	return certFile, keyFile
}

// printSetupHint logs the setup URL and renders it as a terminal QR code so
// a phone can finish first-boot configuration.
func printSetupHint(host string, port int, useTLS bool) {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	displayHost := host
	if displayHost == "0.0.0.0" || displayHost == "" {
		displayHost = "localhost"
	}
	url := fmt.Sprintf("%s://%s:%d/", scheme, displayHost, port)

	log.Printf("🔧 Panel is not initialized, open %s to finish setup", url)
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Print(qr.ToSmallString(false))
}
