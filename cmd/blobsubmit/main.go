// Package main submits one blob to a sugondat node and prints the hash of the
// block it was finalized in.
//
//	SUGONDAT_SEED=0x... blobsubmit -namespace 7 -data "hello"
//	SUGONDAT_SEED=0x... blobsubmit -namespace 7 -file batch.bin
//
// The signing key is an ed25519 seed read from SUGONDAT_SEED. The node
// endpoint is read from SUGONDAT_RPC_URL and the default -timeout from
// SUBMIT_TIMEOUT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/sugondat"
	"github.com/archon-research/sugondat-rpc/internal/pkg/env"
	"github.com/archon-research/sugondat-rpc/internal/pkg/hexutil"
	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
)

type options struct {
	namespace uint64
	data      string
	file      string
	timeout   time.Duration
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelWarn),
	}))

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("submission failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	defaultTimeout, err := env.GetDuration("SUBMIT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return options{}, err
	}

	var opts options
	fs := flag.NewFlagSet("blobsubmit", flag.ContinueOnError)
	fs.Uint64Var(&opts.namespace, "namespace", 0, "namespace id (uint32)")
	fs.StringVar(&opts.data, "data", "", "blob contents")
	fs.StringVar(&opts.file, "file", "", "read blob contents from file (- for stdin)")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "give up waiting for finality after this long")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.namespace > math.MaxUint32 {
		return options{}, fmt.Errorf("namespace %d does not fit in 32 bits", opts.namespace)
	}
	if (opts.data == "") == (opts.file == "") {
		return options{}, errors.New("exactly one of -data or -file is required")
	}
	return opts, nil
}

func readBlob(opts options) ([]byte, error) {
	if opts.data != "" {
		return []byte(opts.data), nil
	}
	if opts.file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(opts.file)
}

func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) error {
	seed := env.Get("SUGONDAT_SEED", "")
	if seed == "" {
		return errors.New("SUGONDAT_SEED is required")
	}
	signer, err := sugondat.KeypairFromHexSeed(seed)
	if err != nil {
		return err
	}

	data, err := readBlob(opts)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client, err := sugondat.New(ctx, sugondat.Config{
		URL:    env.Get("SUGONDAT_RPC_URL", "ws://127.0.0.1:9944"),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	sender, err := signer.Address(client.SS58Prefix())
	if err != nil {
		return err
	}
	ns := nmt.NamespaceFromUint32BE(uint32(opts.namespace))
	logger.Info("submitting blob", "namespace", ns, "size", len(data), "sender", sender)

	hash, err := client.SubmitBlob(ctx, data, ns, signer)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hexutil.FormatHash(hash))
	return err
}
