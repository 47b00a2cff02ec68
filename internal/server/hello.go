package server

import (
	"strconv"
	"strings"

	"github.com/rkvd/rkvd/internal/protocol"
)

const serverName = "rkvd"
const serverVersion = "1.0.0"

// cmdHello implements protocol negotiation. There is no grounding for
// this command in the reference this package was otherwise built
// against; its shape is taken directly from the requirements this
// server is built to: HELLO [protover] [AUTH user pass] [SETNAME name].
func cmdHello(st *connState, args []string) protocol.Frame {
	newVersion := st.version

	i := 0
	if i < len(args) && !isHelloOption(args[i]) {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return protocol.ErrorReply("ERR protocol version must be a number")
		}
		if v != 2 && v != 3 {
			return protocol.ErrorReply("ERR unsupported protocol version: " + args[i])
		}
		newVersion = v
		i++
	}

	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "AUTH":
			if i+2 >= len(args) {
				return protocol.ErrorReply("ERR syntax error")
			}
			// No authentication is implemented; accept and ignore so
			// well-behaved clients that always send AUTH don't fail.
			i += 3
		case "SETNAME":
			if i+1 >= len(args) {
				return protocol.ErrorReply("ERR syntax error")
			}
			i += 2
		default:
			return protocol.ErrorReply("ERR syntax error")
		}
	}

	st.version = newVersion
	return helloResponse(st)
}

func isHelloOption(s string) bool {
	up := strings.ToUpper(s)
	return up == "AUTH" || up == "SETNAME"
}

func helloResponse(st *connState) protocol.Frame {
	keys := []string{"server", "version", "proto", "id", "mode", "role", "modules"}
	vals := []protocol.Frame{
		protocol.BulkString(serverName),
		protocol.BulkString(serverVersion),
		protocol.Integer(int64(st.version)),
		protocol.Integer(st.id),
		protocol.BulkString("standalone"),
		protocol.BulkString("master"),
		protocol.NewArray(),
	}

	if st.version >= 3 {
		keyFrames := make([]protocol.Frame, len(keys))
		for i, k := range keys {
			keyFrames[i] = protocol.BulkString(k)
		}
		return protocol.Frame{Type: protocol.TypeMap, MapKeys: keyFrames, Elems: vals}
	}

	flat := make([]protocol.Frame, 0, len(keys)*2)
	for i, k := range keys {
		flat = append(flat, protocol.BulkString(k), vals[i])
	}
	return protocol.NewArray(flat...)
}
