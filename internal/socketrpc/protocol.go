package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 methods, one per model.CatalogReader method. Requests and
// responses are newline-delimited JSON over a Unix domain socket.
//
//   Method              Params                              Result
//   ─────────────────   ─────────────────────────────────   ─────────────────
//   FetchPage           {PageIndex: int, PageSize: int}     ProductPage
//   TotalProductCount   (none)                              int64
//   TopSellers          {Limit: int}                        []Seller
//   TrendingProducts    {Limit: int}                        []Product
//   ProductsByIDs       {IDs: []string}                     []Product
//
// Error codes:
//   -32700  Parse error
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns $XDG_RUNTIME_DIR/storefeed/storefeed.sock, or
// ~/.local/state/storefeed/storefeed.sock when XDG_RUNTIME_DIR is unset.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "storefeed", "storefeed.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "storefeed.sock")
	}
	return filepath.Join(home, ".local", "state", "storefeed", "storefeed.sock")
}
