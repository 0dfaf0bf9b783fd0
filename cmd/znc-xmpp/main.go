package main

import (
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/cptaffe/znc-xmpp/internal/bouncer"
	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/web"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

func main() {
	configPath := flag.String("config", "znc-xmpp.yaml", "Configuration file or URL")
	listenAddr := flag.String("listen", "", "XMPP bind address (overrides config)")
	webAddr := flag.String("web", "", "Web portal bind address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *webAddr != "" {
		cfg.Web.Listen = *webAddr
	}

	log.Printf("Starting XMPP gateway for domain %s", cfg.Server.Name)
	log.Printf("XMPP bind address: %s", cfg.Server.Listen)
	if cfg.Web.Listen != "" {
		log.Printf("Web portal bind address: %s", cfg.Web.Listen)
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Cert != "" && cfg.TLS.Key != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			log.Fatalf("Failed to load TLS keypair: %v", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	} else if cfg.TLS.Require {
		log.Fatal("TLS is required but no certificate is configured")
	}

	store := bouncer.NewStore(cfg)

	server, err := xmpp.NewServer(xmpp.Options{
		ServerName:         cfg.Server.Name,
		Listen:             cfg.Server.Listen,
		TLSConfig:          tlsConfig,
		TLSRequired:        cfg.TLS.Require,
		HistoryLimit:       cfg.Gateway.HistoryLimit,
		Keepalive:          cfg.Keepalive(),
		PendingJoinTimeout: cfg.PendingJoinTimeout(),
		Store:              store,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	store.Bind(server)
	store.Connect()

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	var portal *web.Portal
	if cfg.Web.Listen != "" {
		portal = web.NewPortal(server, cfg)
		go func() {
			if err := portal.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("Web portal error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Gateway is running. Press Ctrl+C to stop.")
	<-sigChan
	log.Println("Shutdown signal received, stopping...")

	if portal != nil {
		if err := portal.Stop(); err != nil {
			log.Printf("Error stopping web portal: %v", err)
		}
	}
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	store.Disconnect()

	log.Println("Gateway stopped. Goodbye!")
}
