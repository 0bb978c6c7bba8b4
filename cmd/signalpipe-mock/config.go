package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultAddr    = "127.0.0.1:8090"
	defaultGameKey = "11111111111111111111111111111111"
	defaultSecret  = "1111111111111111111111111111111111111111"
)

type Config struct {
	Addr    string
	GameKey string
	Secret  string
	// Force overrides the response for every request: "" serves normal
	// responses, otherwise one of ok|created|unauthorized|bad-request|
	// server-error|silent.
	Force string
	// Enabled=false answers init handshakes with enabled:false.
	Enabled bool
	// ConfigsFile is an optional JSON file of remote config entries to
	// serve in the init response.
	ConfigsFile string
}

func LoadConfig(args []string) (Config, error) {
	addr := envOrDefault("SIGNALPIPE_MOCK_ADDR", defaultAddr)
	gameKey := envOrDefault("SIGNALPIPE_MOCK_GAME_KEY", defaultGameKey)
	secret := envOrDefault("SIGNALPIPE_MOCK_SECRET", defaultSecret)

	flagSet := flag.NewFlagSet("signalpipe-mock", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagGameKey := flagSet.String("game-key", gameKey, "game key clients must sign with")
	flagSecret := flagSet.String("secret", secret, "secret used to verify signatures")
	flagForce := flagSet.String("force", "", "force every response: ok|created|unauthorized|bad-request|server-error|silent")
	flagEnabled := flagSet.Bool("enabled", true, "report enabled=true in init responses")
	flagConfigs := flagSet.String("configs", "", "JSON file of remote config entries to serve")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		Addr:        strings.TrimSpace(*flagAddr),
		GameKey:     strings.TrimSpace(*flagGameKey),
		Secret:      strings.TrimSpace(*flagSecret),
		Force:       strings.ToLower(strings.TrimSpace(*flagForce)),
		Enabled:     *flagEnabled,
		ConfigsFile: strings.TrimSpace(*flagConfigs),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}

	switch config.Force {
	case "", "ok", "created", "unauthorized", "bad-request", "server-error", "silent":
	default:
		return Config{}, fmt.Errorf("unsupported force mode: %s", config.Force)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
