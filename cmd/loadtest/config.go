package main

import (
	"errors"
	"flag"
	"os"
	"strings"
)

type Config struct {
	BaseURL  string
	WSURL    string
	StatsURL string

	StatsToken string

	Rooms               int
	DurationSeconds      int
	MessageRatePerRoom   float64
	JoinTimeoutSeconds   int
	ReportJSON           string
	MaxErrorRate         float64
	MaxSendQueueDrops    int64
}

func parseConfig(args []string) (Config, error) {
	cfg := Config{}

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "Base HTTP URL of the sealed-chat server")
	fs.StringVar(&cfg.WSURL, "ws-url", "", "WebSocket URL override (defaults to <base-url>/ws with ws/wss scheme)")
	fs.StringVar(&cfg.StatsURL, "stats-url", "/api/internal/stats", "Internal stats endpoint path or absolute URL")
	fs.StringVar(&cfg.StatsToken, "stats-token", "", "Optional token for X-Internal-Token header")

	fs.IntVar(&cfg.Rooms, "rooms", 10, "Number of rooms to drive concurrently, each with one host and one guest")
	fs.IntVar(&cfg.DurationSeconds, "duration-seconds", 60, "Steady-state duration in seconds")
	fs.Float64Var(&cfg.MessageRatePerRoom, "message-rate-per-room", 1.0, "Messages sent per room per second, split across both participants")
	fs.IntVar(&cfg.JoinTimeoutSeconds, "join-timeout-seconds", 15, "WebSocket handshake timeout in seconds for each host/guest connection")

	fs.StringVar(&cfg.ReportJSON, "report-json", "", "Optional path to write a JSON report")
	fs.Float64Var(&cfg.MaxErrorRate, "max-error-rate", 0.01, "Pass threshold: max fraction of failed operations")
	fs.Int64Var(&cfg.MaxSendQueueDrops, "max-send-queue-drops", 0, "Pass threshold: max acceptable server-reported send queue drops")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.Rooms <= 0 {
		return cfg, errors.New("rooms must be positive")
	}
	if cfg.DurationSeconds <= 0 {
		return cfg, errors.New("duration-seconds must be positive")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.BaseURL)
	}
	return cfg, nil
}

func deriveWSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	default:
		return "ws://" + baseURL + "/ws"
	}
}
