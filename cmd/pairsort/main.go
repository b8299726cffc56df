// Sorts a TSV file of string/float pairs through the shuffle engine, or serves a sorter over the Redis protocol.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/pairs/pkg/config"
	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/port"
	"github.com/nobletooth/pairs/pkg/registry"
	"github.com/nobletooth/pairs/pkg/shuffle"
	"github.com/nobletooth/pairs/pkg/utils"
)

var (
	printVersion = flag.Bool("print_version", false, "Print the version and exit.")
	input        = flag.String("input", "-", "TSV file of left<TAB>right lines to sort; - reads stdin.")
	output       = flag.String("output", "-",
		"Where sorted pairs are written; - writes stdout. With several partitions, each goes to <output>-<partition>.")
	outputFormat = flag.String("output_format", formatTSV, "Output format: tsv/binary")
	partitions   = flag.Int("partitions", 1, "Number of partitions pairs are shuffled into, by left element.")
	serve        = flag.Bool("serve", false, "Serve a sorter over the Redis protocol instead of sorting once.")
)

// openInput opens the -input flag.
func openInput() (io.ReadCloser, error) {
	if *input == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(*input)
}

// createOutput creates the output of `partition`.
func createOutput(partition int) (io.WriteCloser, error) {
	if *output == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	if *partitions == 1 {
		return os.Create(*output)
	}
	return os.Create(fmt.Sprintf("%s-%05d", *output, partition))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// sortOnce shuffles the input into partitions and writes every partition in sorted order.
func sortOnce(ctx context.Context, comparator registry.RawComparator) (err error) {
	shuffler, err := shuffle.NewShuffler(*partitions, shuffle.HashPartitioner{},
		shuffle.DefaultSorterOptions(comparator))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, shuffler.Close()) }()

	in, err := openInput()
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	added, err := readTSV(in, shuffler)
	_ = in.Close()
	if err != nil {
		return err
	}
	slog.Info("Read input.", "pairs", added, "partitions", shuffler.Partitions())

	for partition := range shuffler.Partitions() {
		out, err := createOutput(partition)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		written, err := writeSorted(ctx, shuffler.Partition(partition), out, *outputFormat)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("failed to write partition %d: %w", partition, err)
		}
		slog.Debug("Wrote partition.", "partition", partition, "pairs", written,
			"runs", shuffler.Partition(partition).Runs())
	}
	return nil
}

// serveSorter serves a sorter over the Redis protocol until `ctx` is done. A file given by -input is loaded first.
func serveSorter(ctx context.Context, reg *registry.Registry, comparator registry.RawComparator) (err error) {
	sorter, err := shuffle.NewSorter(shuffle.DefaultSorterOptions(comparator))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sorter.Close()) }()

	if *input != "-" {
		in, err := openInput()
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		added, err := readTSV(in, sorter)
		_ = in.Close()
		if err != nil {
			return err
		}
		slog.Info("Loaded input.", "pairs", added)
	}
	return port.RunRedisServer(ctx, sorter, reg)
}

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Pairsort build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	reg := registry.New()
	if err := pair.Register(reg); err != nil {
		slog.Error("Failed to register pair comparator.", "error", err)
		os.Exit(1)
	}
	comparator, found := registry.Lookup[pair.StringFloat](reg)
	if !found {
		utils.RaiseInvariant("main", "missing_comparator", "Pair comparator isn't defined after registration.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling context.", "signal", sig)
		cancel()
	}()

	var err error
	if *serve {
		err = serveSorter(ctx, reg, comparator)
	} else {
		err = sortOnce(ctx, comparator)
	}
	cancel()
	if err != nil {
		slog.Error("Pairsort stopped.", "error", err)
		os.Exit(1)
	}
}
