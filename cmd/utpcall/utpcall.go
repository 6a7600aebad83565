// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program utpcall issues calls to a utpd service and prints the results
// together with any notifications the service pushes.
//
// Usage:
//
//	utpcall [options] <address> {<method> <params>}...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
)

var (
	dialTimeout = flag.Duration("dial", 5*time.Second, "Timeout on dialing the server (0 for no timeout)")
	callTimeout = flag.Duration("timeout", 0, "Timeout on each call (0 for no timeout)")
	waitFor     = flag.Duration("wait", 0, "Wait this long for notifications after the last call")
	withLogging = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [options] <address> {<method> <params>}...

Connect to the utpd service at the specified address and issue the specified
method calls in order. Each result is printed to stdout as a JSON object, as is
each notification pushed by the service while the client is connected.

Method names may omit the "utp." prefix. Channels opened by the calls are
closed by the service when the client disconnects.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if flag.NArg() < 3 || flag.NArg()%2 == 0 {
		log.Fatal("Arguments are <address> {<method> <params>}...")
	}

	ntype, addr := "tcp", flag.Arg(0)
	if !strings.Contains(addr, ":") {
		ntype = "unix"
	}
	conn, err := net.DialTimeout(ntype, addr, *dialTimeout)
	if err != nil {
		log.Fatalf("Dial %q: %v", addr, err)
	}
	cli := newClient(channel.Line(conn, conn))
	defer cli.Close()

	ok := true
	args := flag.Args()[1:]
	for i := 0; i < len(args); i += 2 {
		if err := issue(cli, methodName(args[i]), args[i+1]); err != nil {
			log.Printf("Call %q failed: %v", args[i], err)
			ok = false
			break
		}
	}
	if ok && *waitFor > 0 {
		time.Sleep(*waitFor)
	}
	if !ok {
		os.Exit(1)
	}
}

func methodName(s string) string {
	if strings.Contains(s, ".") {
		return s
	}
	return "utp." + s
}

func issue(cli *jrpc2.Client, method, params string) error {
	ctx := context.Background()
	if *callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *callTimeout)
		defer cancel()
	}
	var req any
	if params != "" {
		req = json.RawMessage(params)
	}
	rsp, err := cli.Call(ctx, method, req)
	if err != nil {
		return err
	}
	var result json.RawMessage
	if err := rsp.UnmarshalResult(&result); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	fmt.Printf(`{"method":%q,"result":%s}`+"\n", method, string(result))
	return nil
}

func newClient(conn channel.Channel) *jrpc2.Client {
	opts := &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			var p json.RawMessage
			req.UnmarshalParams(&p)
			fmt.Printf(`{"method":%q,"params":%s}`+"\n", req.Method(), string(p))
		},
	}
	if *withLogging {
		opts.Logger = jrpc2.StdLogger(log.New(os.Stderr, "[client] ", log.LstdFlags|log.Lshortfile))
	}
	return jrpc2.NewClient(conn, opts)
}
