package server

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rkvd/rkvd/internal/protocol"
)

// configParams builds the fixed CONFIG GET parameter table from the
// connection's configuration snapshot. Several values are static stubs
// by design: this server has no real memory-based eviction, no
// RDB/AOF persistence and a single logical database.
func configParams(st *connState) map[string]string {
	return map[string]string{
		"port":             strconv.Itoa(st.cfg.Port),
		"bind":             st.cfg.Host,
		"storage-backend":  st.cfg.Backend,
		"maxmemory":        "0",
		"maxmemory-policy": "noeviction",
		"save":             "",
		"appendonly":       "no",
		"databases":        "1",
	}
}

// cmdConfig implements CONFIG GET <param> [param ...]|*. There is no
// grounding for this command either; its table and wildcard behavior
// are taken directly from the server's own requirements.
func cmdConfig(st *connState, args []string) protocol.Frame {
	if len(args) == 0 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'config' command")
	}
	if strings.ToUpper(args[0]) != "GET" {
		return protocol.ErrorReply("ERR CONFIG " + args[0] + " is not supported")
	}
	if len(args) < 2 {
		return protocol.ErrorReply("ERR wrong number of arguments for 'config|get' command")
	}

	params := configParams(st)
	seen := make(map[string]bool)
	var matched []string
	for _, pattern := range args[1:] {
		if pattern == "*" {
			for k := range params {
				if !seen[k] {
					seen[k] = true
					matched = append(matched, k)
				}
			}
			continue
		}
		if k := strings.ToLower(pattern); !seen[k] {
			if _, ok := params[k]; ok {
				seen[k] = true
				matched = append(matched, k)
			}
		}
	}
	sort.Strings(matched)

	flat := make([]protocol.Frame, 0, len(matched)*2)
	for _, k := range matched {
		flat = append(flat, protocol.BulkString(k), protocol.BulkString(params[k]))
	}
	return protocol.NewArray(flat...)
}
