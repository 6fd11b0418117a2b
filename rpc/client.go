package pantryrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"pantry"
)

// StatusError is a non-zero response status.
type StatusError struct {
	Function string
	Code     int32
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc %s: status %d: %s", e.Function, e.Code, e.Message)
}

// Is maps status codes back onto the engine's sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case StatusInvalid:
		return target == pantry.ErrValidation
	case StatusNotFound:
		return target == pantry.ErrNotFound
	case StatusNotConvertible:
		return target == pantry.ErrUnitNotConvertible
	}
	return false
}

// Client issues one call at a time over conn.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	buf     PacketBuffer
	pending map[uuid.UUID]*Packet
	readBuf []byte
}

func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:    conn,
		pending: map[uuid.UUID]*Packet{},
		readBuf: make([]byte, 32*1024),
	}
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Call sends function with arg and decodes the result into out, which may
// be nil when the function returns nothing.
func (c *Client) Call(ctx context.Context, function string, arg, out any) error {
	req, err := NewRequest(function, arg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// zero deadline when ctx has none
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := WriteFrame(c.conn, req); err != nil {
		return c.ctxErr(ctx, err)
	}
	resp, err := c.await(req.ID)
	if err != nil {
		return c.ctxErr(ctx, err)
	}

	if code := resp.Status(); code != StatusOK {
		return &StatusError{Function: function, Code: code, Message: string(resp.Body[KeyMessage])}
	}
	if out == nil {
		return nil
	}
	result, ok := resp.Body[KeyResult]
	if !ok {
		return nil
	}
	if err := msgpack.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", function, err)
	}
	return nil
}

// await reads frames until the response for id arrives. Responses to other
// ids are kept for their callers.
func (c *Client) await(id uuid.UUID) (*Packet, error) {
	for {
		if pkt, ok := c.pending[id]; ok {
			delete(c.pending, id)
			return pkt, nil
		}
		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			pkts, ferr := c.buf.Feed(c.readBuf[:n])
			for _, pkt := range pkts {
				if pkt.Type == TypeResponse {
					c.pending[pkt.ID] = pkt
				}
			}
			if ferr != nil {
				return nil, ferr
			}
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) ListStock(ctx context.Context) ([]pantry.StockItem, error) {
	var items []pantry.StockItem
	err := c.Call(ctx, "ListStock", nil, &items)
	return items, err
}

func (c *Client) UpsertStock(ctx context.Context, item pantry.StockItem) (pantry.StockItem, error) {
	var saved pantry.StockItem
	err := c.Call(ctx, "UpsertStock", item, &saved)
	return saved, err
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := c.Call(ctx, "Categories", nil, &cats)
	return cats, err
}

func (c *Client) Consume(ctx context.Context, lines []pantry.ConsumeLine) (pantry.ConsumeReport, error) {
	var report pantry.ConsumeReport
	err := c.Call(ctx, "Consume", lines, &report)
	return report, err
}

func (c *Client) BelowMinimum(ctx context.Context) ([]pantry.StockItem, error) {
	var items []pantry.StockItem
	err := c.Call(ctx, "BelowMinimum", nil, &items)
	return items, err
}

func (c *Client) GenerateShopping(ctx context.Context) ([]pantry.ShoppingNeed, error) {
	var needs []pantry.ShoppingNeed
	err := c.Call(ctx, "GenerateShopping", nil, &needs)
	return needs, err
}

func (c *Client) ShoppingList(ctx context.Context) ([]pantry.ShoppingNeed, error) {
	var needs []pantry.ShoppingNeed
	err := c.Call(ctx, "ShoppingList", nil, &needs)
	return needs, err
}

func (c *Client) MarkPurchased(ctx context.Context, id string) error {
	return c.Call(ctx, "MarkPurchased", id, nil)
}

func (c *Client) ClearPurchased(ctx context.Context) error {
	return c.Call(ctx, "ClearPurchased", nil, nil)
}

func (c *Client) ListRecipes(ctx context.Context) ([]pantry.Recipe, error) {
	var recipes []pantry.Recipe
	err := c.Call(ctx, "ListRecipes", nil, &recipes)
	return recipes, err
}

func (c *Client) SaveRecipe(ctx context.Context, draft pantry.Recipe) (SavedRecipe, error) {
	var saved SavedRecipe
	err := c.Call(ctx, "SaveRecipe", draft, &saved)
	return saved, err
}

func (c *Client) PrepareRecipe(ctx context.Context, id string) (pantry.ConsumeReport, error) {
	var report pantry.ConsumeReport
	err := c.Call(ctx, "PrepareRecipe", id, &report)
	return report, err
}

func (c *Client) RecipeCost(ctx context.Context, id string) (Cost, error) {
	var cost Cost
	err := c.Call(ctx, "RecipeCost", id, &cost)
	return cost, err
}
