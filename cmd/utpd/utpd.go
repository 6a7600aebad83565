// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program utpd serves utpdrv channels to host processes over JSON-RPC 2.0.
//
// Usage:
//
//	utpd [options] <address>
//
// Each connection to the service is an independent session; see package
// hostrpc for the methods and notifications it supports.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/creachadair/utpdrv"
	"github.com/creachadair/utpdrv/hostrpc"
	"golang.org/x/sync/errgroup"
)

var (
	tickInterval = flag.Duration("tick", utpdrv.DefaultTickInterval, "Engine timeout check interval")
	maxReads     = flag.Int("max-reads", hostrpc.DefaultMaxPendingReads, "Maximum waiting reads per session")
	maxTasks     = flag.Int("max-tasks", 64, "Maximum concurrent calls per session")
	debugAddr    = flag.String("debug", "", "Serve metrics over HTTP at this address")
	withLogging  = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [options] <address>

Listen for host connections at the specified address, and serve utpdrv
channels to each of them. Messages are newline-delimited JSON-RPC 2.0.
If the address does not contain a colon, it is a Unix-domain socket path.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Arguments are <address>")
	}

	var logger jrpc2.Logger
	if *withLogging {
		logger = jrpc2.StdLogger(log.New(os.Stderr, "[utpdrv] ", log.LstdFlags|log.Lshortfile))
	}

	mux, err := utpdrv.NewMux(&utpdrv.MuxOptions{
		Logger:       logger,
		TickInterval: *tickInterval,
	})
	if err != nil {
		log.Fatalf("Starting mux: %v", err)
	}
	defer mux.Close()

	ntype, addr := "tcp", flag.Arg(0)
	if !strings.Contains(addr, ":") {
		ntype = "unix"
		os.Remove(addr)
	}
	lst, err := net.Listen(ntype, addr)
	if err != nil {
		log.Fatalf("Listen %q: %v", addr, err)
	}
	log.Printf("Listening at %v...", lst.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return lst.Close()
	})
	sopts := &jrpc2.ServerOptions{AllowPush: true, Concurrency: *maxTasks, Logger: logger}
	g.Go(func() error {
		return server.Loop(ctx, server.NetAccepter(lst, channel.Line),
			hostrpc.NewService(mux, &hostrpc.Options{
				Logger:          logger,
				MaxPendingReads: *maxReads,
			}),
			&server.LoopOptions{ServerOptions: sopts})
	})
	if *debugAddr != "" {
		hs := &http.Server{Addr: *debugAddr, Handler: expvar.Handler(), ReadHeaderTimeout: 5 * time.Second}
		expvar.Publish("utpdrv", utpdrv.Metrics())
		g.Go(func() error {
			<-ctx.Done()
			return hs.Close()
		})
		g.Go(func() error {
			log.Printf("Serving metrics at %v", *debugAddr)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("Service ended: %v", err)
	}
	log.Print("Service stopped")
}
