package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rkvd/rkvd/internal/metrics"
	"github.com/rkvd/rkvd/internal/protocol"
	"github.com/rkvd/rkvd/internal/rerrors"
)

// dispatchCommand executes one normalized command name against its
// argument frames, timing the call and recording command/error metrics
// around every branch.
func dispatchCommand(ctx context.Context, st *connState, name string, argElems []protocol.Frame) protocol.Frame {
	timer := metrics.NewTimer()
	reply := runCommand(ctx, st, name, argElems)
	metrics.RecordCommand(name, time.Duration(timer.ElapsedSeconds()*float64(time.Second)))
	if reply.Type == protocol.TypeError {
		metrics.RecordError("command", name)
	}
	return reply
}

func runCommand(ctx context.Context, st *connState, name string, argElems []protocol.Frame) protocol.Frame {
	switch name {
	case "PING":
		return cmdPing(textArgs(argElems))
	case "SET":
		return cmdSet(ctx, st, textArgs(argElems))
	case "GET":
		return cmdGet(ctx, st, textArgs(argElems))
	case "DEL":
		return cmdDel(ctx, st, argElems)
	case "EXISTS":
		return cmdExists(ctx, st, argElems)
	case "DBSIZE":
		return cmdDBSize(ctx, st, argElems)
	case "FLUSHDB":
		return cmdFlushDB(ctx, st, argElems)
	case "COMMAND":
		return protocol.NewArray()
	case "HELLO":
		return cmdHello(st, textArgs(argElems))
	case "CONFIG":
		return cmdConfig(st, textArgs(argElems))
	default:
		return protocol.ErrorReply("ERR unknown command '" + name + "'")
	}
}

func textArgs(elems []protocol.Frame) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.Text()
	}
	return out
}

// bulkArgs requires every element to be a bulk-like string, returning
// ok=false the first time it isn't. DEL and EXISTS use this rather than
// textArgs because a non-bulk-string argument to either is a command
// error, not a value to silently coerce and skip.
func bulkArgs(elems []protocol.Frame) (args []string, ok bool) {
	args = make([]string, len(elems))
	for i, e := range elems {
		if !e.IsBulkLike() {
			return nil, false
		}
		args[i] = e.Bulk
	}
	return args, true
}

func cmdPing(args []string) protocol.Frame {
	switch len(args) {
	case 0:
		return protocol.SimpleString("PONG")
	case 1:
		return protocol.BulkString(args[0])
	default:
		return protocol.ErrorReply("ERR wrong number of arguments for 'ping' command")
	}
}

// parseSetOptions reads the optional EX <seconds> / PX <milliseconds>
// trailing clause of a SET command.
func parseSetOptions(args []string) (ttl time.Duration, hasTTL bool, err error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	if len(args) != 2 {
		return 0, false, errArgSyntax{}
	}
	n, convErr := strconv.ParseInt(args[1], 10, 64)
	if convErr != nil || n <= 0 {
		return 0, false, errArgSyntax{}
	}
	switch strings.ToUpper(args[0]) {
	case "EX":
		return time.Duration(n) * time.Second, true, nil
	case "PX":
		return time.Duration(n) * time.Millisecond, true, nil
	default:
		return 0, false, errArgSyntax{}
	}
}

type errArgSyntax struct{}

func (errArgSyntax) Error() string { return "ERR syntax error" }

func cmdSet(ctx context.Context, st *connState, args []string) protocol.Frame {
	if len(args) < 2 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'set' command")
	}
	key, value := args[0], args[1]
	ttl, hasTTL, err := parseSetOptions(args[2:])
	if err != nil {
		return protocol.ErrorReply(err.Error())
	}

	if hasTTL {
		if storeErr := st.backend.SetWithExpiry(ctx, key, value, ttl); storeErr != nil {
			return storageErrReply(storeErr)
		}
	} else {
		if storeErr := st.backend.Set(ctx, key, value); storeErr != nil {
			return storageErrReply(storeErr)
		}
	}
	return protocol.SimpleString("OK")
}

func cmdGet(ctx context.Context, st *connState, args []string) protocol.Frame {
	if len(args) != 1 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'get' command")
	}
	v, ok, err := st.backend.Get(ctx, args[0])
	if err != nil {
		return storageErrReply(err)
	}
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.BulkString(v)
}

func cmdDel(ctx context.Context, st *connState, elems []protocol.Frame) protocol.Frame {
	if len(elems) == 0 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'del' command")
	}
	args, ok := bulkArgs(elems)
	if !ok {
		return protocol.ErrorReply("ERR value is not a valid key argument")
	}
	count, err := st.backend.DeleteMany(ctx, args)
	if err != nil {
		return storageErrReply(err)
	}
	return protocol.Integer(int64(count))
}

func cmdExists(ctx context.Context, st *connState, elems []protocol.Frame) protocol.Frame {
	if len(elems) == 0 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'exists' command")
	}
	args, ok := bulkArgs(elems)
	if !ok {
		return protocol.ErrorReply("ERR value is not a valid key argument")
	}
	var count int64
	for _, k := range args {
		exists, err := st.backend.Exists(ctx, k)
		if err != nil {
			return storageErrReply(err)
		}
		if exists {
			count++
		}
	}
	return protocol.Integer(count)
}

func cmdDBSize(ctx context.Context, st *connState, elems []protocol.Frame) protocol.Frame {
	if len(elems) != 0 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'dbsize' command")
	}
	count, err := st.backend.KeysCount(ctx)
	if err != nil {
		return storageErrReply(err)
	}
	return protocol.Integer(count)
}

func cmdFlushDB(ctx context.Context, st *connState, elems []protocol.Frame) protocol.Frame {
	if len(elems) != 0 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'flushdb' command")
	}
	if err := st.backend.Flush(ctx); err != nil {
		return storageErrReply(err)
	}
	return protocol.SimpleString("OK")
}

// storageErrReply classifies a backend failure through rerrors before
// replying, so the metric label always reflects the recovery class
// rather than the literal command name.
func storageErrReply(err error) protocol.Frame {
	classified := rerrors.WrapStorage(err, "storage operation failed")
	metrics.RecordError(rerrors.ClassOf(classified).String(), "")
	return protocol.ErrorReply("ERR " + err.Error())
}
