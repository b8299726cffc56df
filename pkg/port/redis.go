// The RESP port lets any Redis client poke at a running sorter: add pairs, list them in sorted order, and compare
// two pairs with the raw comparator. It is a debugging surface, not a storage server.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/registry"
	"github.com/nobletooth/pairs/pkg/scan"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// PairSorter is the part of a sorter the RESP port works with.
type PairSorter interface {
	AddPair(p pair.StringFloat) error
	Len() int
	Sorted(ctx context.Context) iter.Seq2[[]byte, error]
	MayContain(left string) bool
}

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeArray      []string // Writes an array of bulk strings if writesArray is set.
	writesArray     bool
	writeString     string // Writes a string value otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisArray(items []string) redisOutput {
	return redisOutput{writeArray: items, writesArray: true}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

// wrongArity is the error Redis returns for a bad argument count.
func wrongArity(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// writeTo writes the output to a client connection.
func (ro redisOutput) writeTo(conn redcon.Conn) {
	switch {
	case ro.err != nil:
		conn.WriteError(*ro.err)
	case ro.writeInt != nil:
		conn.WriteInt(*ro.writeInt)
	case ro.writesArray:
		conn.WriteArray(len(ro.writeArray))
		for _, item := range ro.writeArray {
			conn.WriteBulkString(item)
		}
	default:
		conn.WriteString(ro.writeString)
	}
	if ro.closeConnection {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close connection.", "error", err)
		}
	}
}

type redisHandler struct {
	sorter     PairSorter
	comparator registry.RawComparator
}

// newRedisHandler creates a new redisHandler. The pair comparator is looked up in `reg`.
func newRedisHandler(sorter PairSorter, reg *registry.Registry) (*redisHandler, error) {
	if sorter == nil {
		return nil, errors.New("expected a non-nil sorter")
	}
	if reg == nil {
		return nil, errors.New("expected a non-nil registry")
	}
	comparator, found := registry.Lookup[pair.StringFloat](reg)
	if !found {
		return nil, errors.New("no comparator is defined for string/float pairs")
	}
	return &redisHandler{sorter: sorter, comparator: comparator}, nil
}

// parsePair parses a pair given as two command arguments.
func parsePair(left, right string) (pair.StringFloat, error) {
	value, err := strconv.ParseFloat(right, 32)
	if err != nil {
		return pair.StringFloat{}, fmt.Errorf("value is not a valid float: %s", right)
	}
	return pair.NewStringFloat(left, float32(value)), nil
}

func (rh *redisHandler) handle(ctx context.Context, cmd redisCommand) redisOutput {
	switch command := strings.ToUpper(cmd.command); command {
	case "PING":
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "PADD":
		if len(cmd.args) != 2 {
			return wrongArity(command)
		}
		p, err := parsePair(cmd.args[0], cmd.args[1])
		if err != nil {
			return writeRedisError(err)
		}
		if err := rh.sorter.AddPair(p); err != nil {
			return writeRedisError(err)
		}
		return writeRedisInt(rh.sorter.Len())
	case "PCOUNT":
		if len(cmd.args) != 0 {
			return wrongArity(command)
		}
		return writeRedisInt(rh.sorter.Len())
	case "PSORTED":
		if len(cmd.args) > 1 {
			return wrongArity(command)
		}
		pattern := "*"
		if len(cmd.args) == 1 {
			pattern = cmd.args[0]
		}
		if err := scan.ValidGlob(pattern); err != nil {
			return writeRedisError(fmt.Errorf("invalid pattern %q: %w", pattern, err))
		}
		var sortErr error
		pairs := func(yield func(pair.StringFloat) bool) {
			for record, err := range rh.sorter.Sorted(ctx) {
				if err != nil {
					sortErr = err
					return
				}
				var p pair.StringFloat
				if err := p.UnmarshalBinary(record); err != nil {
					sortErr = err
					return
				}
				if !yield(p) {
					return
				}
			}
		}
		items := make([]string, 0)
		for p := range scan.MatchGlob(pattern, pairs) {
			items = append(items, p.String())
		}
		if sortErr != nil {
			return writeRedisError(sortErr)
		}
		return writeRedisArray(items)
	case "PCMP":
		if len(cmd.args) != 4 {
			return wrongArity(command)
		}
		records := make([][]byte, 0, 2)
		for _, args := range [][]string{cmd.args[:2], cmd.args[2:]} {
			p, err := parsePair(args[0], args[1])
			if err != nil {
				return writeRedisError(err)
			}
			record, err := p.MarshalBinary()
			if err != nil {
				return writeRedisError(err)
			}
			records = append(records, record)
		}
		return writeRedisInt(rh.comparator.Compare(records[0], records[1]))
	case "PEXISTS":
		if len(cmd.args) != 1 {
			return wrongArity(command)
		}
		if rh.sorter.MayContain(cmd.args[0]) {
			return writeRedisInt(1)
		}
		return writeRedisInt(0)
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// RunRedisServer starts a Redis protocol server over the given sorter, until `ctx` is done.
// The sorter is owned by the caller and is left open.
func RunRedisServer(ctx context.Context, sorter PairSorter, reg *registry.Registry) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(sorter, reg)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			redisHandler.handle(ctx, command).writeTo(conn)
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted connection.", "remote", conn.RemoteAddr())
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with an error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	slog.Info("Serving Redis protocol.", "address", *address)

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err := <-serverErrSignal:
		if err == nil {
			return errors.New("redis server stopped unexpectedly")
		}
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
