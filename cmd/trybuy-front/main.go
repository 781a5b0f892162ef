package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/digitalmarketplace/trybuy-front/internal"
	"github.com/digitalmarketplace/trybuy-front/internal/config"
	"github.com/digitalmarketplace/trybuy-front/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"front": map[string]any{
			"baseURL":            "https://try.yourmarketplace.gov",
			"addr":               ":8080",
			"name":               "trybuy-front",
			"defaultPath":        "/catalogue/",
			"callbackPath":       "/try/callback",
			"blockedReturnPaths": []string{"/try/callback", "/signup"},
			"allowedOrigins":     []string{"https://www.yourmarketplace.gov"},
			"stateSigningSecret": map[string]string{"$env": "STATE_SIGNING_SECRET"},
			"sessions": map[string]any{
				"storage":         "memory",
				"timeout":         "24h",
				"cleanupInterval": "1h",
			},
			"admin": map[string]any{
				"enabled":  false,
				"username": "admin",
				"password": map[string]string{"$env": "ADMIN_PASSWORD"},
			},
		},
		"idp": map[string]any{
			"authorizationUrl": "https://identity.yourmarketplace.gov/authorize",
			"clientId":         map[string]string{"$env": "IDP_CLIENT_ID"},
			"redirectUrl":      "https://try.yourmarketplace.gov/try/callback",
			"scopes":           []string{"trial"},
		},
		"api": map[string]any{
			"baseURL":     "https://api.yourmarketplace.gov",
			"timeout":     "10s",
			"statusPath":  "/v1/trial/status",
			"profilePath": "/v1/trial/profile",
		},
		"tokenValidation": map[string]any{
			"enabled": true,
			"grace":   "30s",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	if *validate {
		fmt.Printf("Validating: %s\n", *conf)
		if _, err := config.Load(*conf); err != nil {
			fmt.Printf("Result: FAIL\n  - %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Result: PASS")
		return
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting trybuy-front", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewTryBuyFront(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
