// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"
	"github.com/hayselnut/stationd/internal/config"
	"github.com/hayselnut/stationd/internal/metrics"
	"github.com/hayselnut/stationd/internal/relay"
	"github.com/hayselnut/stationd/internal/tsdbstore"
	"github.com/hayselnut/stationd/pkg/bus"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/nats"
	"github.com/hayselnut/stationd/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	keys, err := config.Load(flagConfigFile, flagConfigFile == "./config.json")
	if err != nil {
		log.Fatal(err)
	}

	if flagGops || keys.EnableGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if keys.Relay.Address != "" {
		nats.Keys.Address = keys.Relay.Address
		nats.Connect()
	}

	db, err := openStore(keys)
	if err != nil {
		log.Fatalf("opening store at %q: %s", keys.DBPath, err.Error())
	}

	reg := prometheus.NewRegistry()
	var m *metrics.Metrics
	if keys.Metrics.Enabled {
		m = metrics.New(reg)
	}

	disp := bus.NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	tsdbRt := bus.NewRuntime(disp, tsdbstore.New(db, m))
	wg.Add(1)
	go func() { defer wg.Done(); _ = tsdbRt.Run(ctx) }()

	relayRt := bus.NewRuntime(disp, relay.New(keys.Relay.Subject))
	wg.Add(1)
	go func() { defer wg.Done(); _ = relayRt.Run(ctx) }()

	txTimeout, err := time.ParseDuration(keys.TransactionTimeout)
	if err != nil {
		log.Warnf("bad transaction-timeout %q, using default: %s", keys.TransactionTimeout, err.Error())
		txTimeout = transport.DefaultMaxTransactionTime
	}

	conn, err := net.ListenPacket("udp", keys.ListenAddr)
	if err != nil {
		log.Fatalf("listening on %q: %s", keys.ListenAddr, err.Error())
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runUDPPump(ctx, conn, disp, tsdbRt.Instance(), relayRt.Instance(), txTimeout, keys.VerifyDigest, m)
	}()

	if keys.Metrics.Enabled && keys.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: keys.Metrics.Addr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %s", err.Error())
			}
		}()
		go func() { <-ctx.Done(); srv.Shutdown(context.Background()) }()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("could not create gocron scheduler: %s", err.Error())
	}
	registerAutosave(scheduler, disp, tsdbRt.Instance(), keys.AutosaveInterval)
	scheduler.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("stationd: shutting down")

	_ = scheduler.Shutdown()
	cancel()
	conn.Close()
	tsdbRt.Shutdown()
	relayRt.Shutdown()
	wg.Wait()

	if err := db.Close(); err != nil {
		log.Errorf("closing store: %s", err.Error())
	}
	log.Info("stationd: shutdown complete")
}

// registerAutosave wires the periodic store flush job.
func registerAutosave(s gocron.Scheduler, disp *bus.Dispatcher, tsdbInst bus.HandlerInstance, interval string) {
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		log.Warnf("stationd: invalid autosave-interval %q, autosave disabled", interval)
		return
	}
	_, err = s.NewJob(gocron.DurationJob(d), gocron.NewTask(func() {
		disp.Announce(bus.HandlerInstance{}, bus.ToInstance(tsdbInst), tsdbstore.MethodAutosave, nil)
	}))
	if err != nil {
		log.Errorf("stationd: registering autosave job: %s", err.Error())
	}
}
