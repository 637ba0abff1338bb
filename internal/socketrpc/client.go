package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const (
	defaultCallTimeout = 30 * time.Second
	dialTimeout        = 5 * time.Second
)

// Client implements model.CatalogReader over the socket. Calls are
// serialized on one connection. A call that fails mid-exchange drops the
// connection and the next call redials.
type Client struct {
	socketPath string

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	encoder *json.Encoder
	nextID  int
	closed  bool
}

var _ model.CatalogReader = (*Client)(nil)

// Dial connects to the socket RPC server at socketPath.
func Dial(socketPath string) (*Client, error) {
	c := &Client{socketPath: socketPath}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("socketrpc: dial: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, scannerInitBufSize)
	c.encoder = json.NewEncoder(conn)
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.encoder = nil
}

// Close closes the underlying connection. Calls after Close fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// readLine reads one newline-terminated response, bounded by
// scannerMaxTokenSize.
func (c *Client) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > scannerMaxTokenSize {
			return nil, bufio.ErrTooLong
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// call sends one request and decodes the result into dest. The connection
// deadline follows ctx, or defaultCallTimeout when ctx has none.
func (c *Client) call(ctx context.Context, method string, params any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("socketrpc: client closed")
	}
	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}

	c.nextID++
	id := c.nextID

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	conn := c.conn
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	resp, err := c.exchange(ctx, id, method, paramsData)
	if err != nil {
		// The stream may still carry this request's reply.
		c.dropLocked()
		return err
	}
	conn.SetDeadline(time.Time{})

	if resp.Error != nil {
		return resp.Error
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// exchange writes the request and reads until the reply with the matching
// id arrives. Replies to earlier ids are skipped.
func (c *Client) exchange(ctx context.Context, id int, method string, params json.RawMessage) (Response, error) {
	if err := c.encoder.Encode(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return Response{}, c.wrapIOError(ctx, method, "send", err)
	}

	for {
		line, err := c.readLine()
		if err != nil {
			return Response{}, c.wrapIOError(ctx, method, "read", err)
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return Response{}, fmt.Errorf("socketrpc: unmarshal response: %w", err)
		}
		if resp.ID < id {
			continue
		}
		if resp.ID != id {
			return Response{}, fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
		}
		return resp, nil
	}
}

func (c *Client) wrapIOError(ctx context.Context, method, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("socketrpc: %s: %w", method, ctxErr)
	}
	var ne net.Error
	if _, hasDeadline := ctx.Deadline(); hasDeadline && errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("socketrpc: %s: %w", method, context.DeadlineExceeded)
	}
	if errors.Is(err, io.EOF) {
		return errors.New("socketrpc: connection closed")
	}
	return fmt.Errorf("socketrpc: %s: %w", op, err)
}

func (c *Client) FetchPage(ctx context.Context, pageIndex, pageSize int) (model.ProductPage, error) {
	var result model.ProductPage
	err := c.call(ctx, "FetchPage", map[string]any{"PageIndex": pageIndex, "PageSize": pageSize}, &result)
	return result, err
}

func (c *Client) TotalProductCount(ctx context.Context) (int64, error) {
	var result int64
	err := c.call(ctx, "TotalProductCount", nil, &result)
	return result, err
}

func (c *Client) TopSellers(ctx context.Context, limit int) ([]model.Seller, error) {
	var result []model.Seller
	err := c.call(ctx, "TopSellers", map[string]any{"Limit": limit}, &result)
	return result, err
}

func (c *Client) TrendingProducts(ctx context.Context, limit int) ([]model.Product, error) {
	var result []model.Product
	err := c.call(ctx, "TrendingProducts", map[string]any{"Limit": limit}, &result)
	return result, err
}

func (c *Client) ProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	var result []model.Product
	err := c.call(ctx, "ProductsByIDs", map[string]any{"IDs": ids}, &result)
	return result, err
}
