// Command loadtest drives a steady-state load against a running
// sealed-chat server: each simulated room pairs a host and a guest
// client over the REST lifecycle endpoints, then keeps both sides'
// WebSocket connections exchanging messages for the configured
// duration. It is a scaled-down descendant of the teacher's
// cmd/loadconduit sweep runner, retargeted at one fixed concurrency
// level instead of a multi-step ramp.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := run(ctx, cfg)
	if err != nil {
		log.Printf("load test run failed: %v", err)
	}

	fmt.Printf("rooms ready: %d/%d\n", report.RoomsReady, report.RoomsAttempted)
	fmt.Printf("messages sent: %d (failures: %d)\n", report.MessagesSent, report.MessageSendFailures)
	fmt.Printf("join p95: %.0fms  error rate: %.4f\n", report.JoinP95Ms, report.ErrorRate)
	fmt.Printf("passed: %v\n", report.Passed)
	if !report.Passed {
		fmt.Printf("fail reason: %s\n", report.FailReason)
	}

	if cfg.ReportJSON != "" {
		if err := writeJSONReport(cfg.ReportJSON, report); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report: %s\n", cfg.ReportJSON)
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (Report, error) {
	metrics := &Metrics{}
	statsClient := NewStatsClient(cfg.BaseURL, cfg.StatsURL, cfg.StatsToken)
	baseline, baselineErr := statsClient.Fetch(ctx)
	started := time.Now()

	steadyCtx, steadyCancel := context.WithTimeout(ctx, time.Duration(cfg.DurationSeconds)*time.Second)
	defer steadyCancel()

	messageInterval := time.Second
	if cfg.MessageRatePerRoom > 0 {
		messageInterval = time.Duration(float64(time.Second) / cfg.MessageRatePerRoom)
	}
	joinTimeout := time.Duration(cfg.JoinTimeoutSeconds) * time.Second

	var wg sync.WaitGroup
	for i := 0; i < cfg.Rooms; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			session := newRoomSession(cfg.BaseURL, cfg.WSURL, joinTimeout, metrics)
			if err := session.run(steadyCtx, messageInterval); err != nil && steadyCtx.Err() == nil {
				log.Printf("room %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	ended := time.Now()
	report := metrics.ToReport(cfg, started, ended)

	if snapshot, err := statsClient.Fetch(ctx); err == nil && baselineErr == nil {
		report.ServerStatsAvailable = true
		report.SendQueueDropDelta = snapshot.Counters.SendQueueDropTotal - baseline.Counters.SendQueueDropTotal
	}

	report.Passed, report.FailReason = evaluate(cfg, report)
	report.GeneratedAtRFC3339 = ended.UTC().Format(time.RFC3339)
	return report, nil
}

func evaluate(cfg Config, report Report) (bool, string) {
	if report.RoomsReady < report.RoomsAttempted {
		return false, fmt.Sprintf("only %d/%d rooms reached active state", report.RoomsReady, report.RoomsAttempted)
	}
	if report.ErrorRate > cfg.MaxErrorRate {
		return false, fmt.Sprintf("error rate %.4f exceeds threshold %.4f", report.ErrorRate, cfg.MaxErrorRate)
	}
	if report.ServerStatsAvailable && report.SendQueueDropDelta > cfg.MaxSendQueueDrops {
		return false, fmt.Sprintf("send queue drops %d exceed threshold %d", report.SendQueueDropDelta, cfg.MaxSendQueueDrops)
	}
	return true, ""
}
