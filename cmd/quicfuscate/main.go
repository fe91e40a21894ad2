// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Command quicfuscate is the stealth QUIC client CLI (spec.md §6): it
// dials a server impersonating a chosen browser's TLS fingerprint and
// reports whether the handshake succeeded.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn"
	"github.com/Christopher-Schulze/quicfuscate/internal/tickets"
)

const applicationName = "quicfuscate"

// CLI captures the command-line arguments, per spec.md §6's external
// interface: no positional arguments, server/port as flags.
type CLI struct {
	Server string `optional:"" short:"s" default:"example.com" help:"The server hostname to connect to."`
	Port   int    `optional:"" short:"p" default:"443"         help:"The server UDP port to connect to."`

	Fingerprint string `optional:"" short:"f" default:"chrome" help:"Browser fingerprint to impersonate: chrome, firefox, safari, edge, brave, opera, chrome_android, safari_ios, random."`

	NoUTLS     bool   `optional:"" name:"no-utls"     help:"Disable uTLS; use the wire library's default TLS stack."`
	VerifyPeer bool   `optional:"" name:"verify-peer" help:"Enable peer certificate verification."`
	CAFile     string `optional:"" name:"ca-file"      help:"CA trust store for peer verification."`

	Verbose bool `optional:"" short:"v" help:"Enable verbose logging."`
	DebugTLS bool `optional:"" name:"debug-tls" help:"Raise the fingerprint/configurator logger to debug."`

	ListFingerprints bool `optional:"" name:"list-fingerprints" help:"Print the fingerprint catalog and exit."`
}

var fingerprintsByFlag = map[string]fingerprint.Identifier{
	"chrome":         fingerprint.ChromeLatest,
	"firefox":        fingerprint.FirefoxLatest,
	"safari":         fingerprint.SafariLatest,
	"edge":           fingerprint.EdgeChromium,
	"brave":          fingerprint.Brave,
	"opera":          fingerprint.Opera,
	"chrome_android": fingerprint.ChromeAndroid,
	"safari_ios":     fingerprint.SafariIOS,
	"random":         fingerprint.Randomized,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out *os.File) int {
	var cli CLI

	parser, err := kong.New(&cli,
		kong.Name(applicationName),
		kong.Description("A stealth QUIC client that impersonates a named browser's TLS fingerprint."),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cli.ListFingerprints {
		printCatalog(out)
		return 0
	}

	id, ok := resolveFingerprint(cli.Fingerprint)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown fingerprint %q\n", cli.Fingerprint)
		return 1
	}

	log := buildLogger(cli.Verbose, cli.DebugTLS)
	defer log.Sync() //nolint:errcheck

	var caTrust *tls.Config
	if cli.CAFile != "" {
		pool, err := loadCAFile(cli.CAFile)
		if err != nil {
			log.Error("failed to load CA file", zap.Error(err))
			return 1
		}
		caTrust = &tls.Config{RootCAs: pool}
	}

	store := tickets.New()

	conn, err := quicconn.New(
		quicconn.Fingerprint(id),
		quicconn.UseUTLS(!cli.NoUTLS),
		quicconn.VerifyPeer(cli.VerifyPeer),
		quicconn.CAFile(caTrust),
		quicconn.Logger(log),
		quicconn.TicketStore(store),
		quicconn.EnableBBR(true),
		quicconn.EnableBurst(true),
	)
	if err != nil {
		log.Error("failed to construct connection", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	done := make(chan error, 1)
	if err := conn.AsyncConnect(ctx, cli.Server, cli.Port, func(err error) {
		done <- err
	}); err != nil {
		log.Error("connect failed", zap.Error(err))
		return 1
	}

	select {
	case err := <-done:
		if err != nil {
			log.Error("handshake failed", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		log.Error("handshake timed out")
		return 1
	}

	log.Info("handshake succeeded", zap.String("server", cli.Server), zap.Int("port", cli.Port))
	_ = conn.Disconnect(0)

	return 0
}

func resolveFingerprint(name string) (fingerprint.Identifier, bool) {
	id, ok := fingerprintsByFlag[strings.ToLower(name)]
	return id, ok
}

func printCatalog(out *os.File) {
	catalog := fingerprint.Catalog()
	ids := make([]fingerprint.Identifier, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fmt.Fprintf(out, "%-20s ja3=%s\n", id, fingerprint.JA3(catalog[id]))
	}
}

func loadCAFile(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func buildLogger(verbose, debugTLS bool) *zap.Logger {
	cfg := sallust.Config{
		Level:    "INFO",
		Encoding: "json",
	}

	if verbose {
		cfg.Level = "DEBUG"
		cfg.Development = true
		cfg.Encoding = "console"
		cfg.EncoderConfig = sallust.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    "capitalColor",
			EncodeTime:     "RFC3339",
			EncodeDuration: "string",
			EncodeCaller:   "short",
		}
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	if debugTLS {
		cfg.Level = "DEBUG"
	}

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
