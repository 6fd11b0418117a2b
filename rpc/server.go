package pantryrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"pantry"
	"pantry/logger"
)

// Status codes carried in response packets.
const (
	StatusOK             int32 = 0
	StatusNoFunction     int32 = -201
	StatusNoSuchFunc     int32 = -202
	StatusNoArg          int32 = -204
	StatusBadArg         int32 = -205
	StatusExecFailed     int32 = -206
	StatusInvalid        int32 = -207
	StatusNotFound       int32 = -208
	StatusNotConvertible int32 = -209
)

var (
	ErrReqHasNoFunc = errors.New("request has no function")
	ErrNoSuchFunc   = errors.New("no such function")
	ErrReqHasNoArg  = errors.New("request has no arg")
)

var ServerFuncs = []string{
	"ListStock",
	"UpsertStock",
	"Categories",
	"Consume",
	"BelowMinimum",
	"GenerateShopping",
	"ShoppingList",
	"MarkPurchased",
	"ClearPurchased",
	"ListRecipes",
	"SaveRecipe",
	"PrepareRecipe",
	"RecipeCost",
}

func strsContains(strs []string, searchVal string) bool {
	for i := range strs {
		if strs[i] == searchVal {
			return true
		}
	}
	return false
}

// SavedRecipe answers SaveRecipe.
type SavedRecipe struct {
	Recipe pantry.Recipe        `msgpack:"recipe"`
	Report pantry.ConsumeReport `msgpack:"report"`
}

// Cost answers RecipeCost.
type Cost struct {
	Total      float64 `msgpack:"total"`
	PerPortion float64 `msgpack:"perPortion"`
}

// Server answers requests against one Kitchen.
type Server struct {
	kitchen *pantry.Kitchen
	log     *logger.Logger
}

func NewServer(k *pantry.Kitchen, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{kitchen: k, log: log}
}

// ProcessPkt runs one request and builds its response.
func (s *Server) ProcessPkt(ctx context.Context, pkt *Packet) *Packet {
	// layer 0, check func
	funcBytes, ok := pkt.Body[KeyFunction]
	if !ok {
		return respErr(pkt, StatusNoFunction, ErrReqHasNoFunc)
	}
	funcStr := string(funcBytes)
	if !strsContains(ServerFuncs, funcStr) {
		return respErr(pkt, StatusNoSuchFunc, ErrNoSuchFunc)
	}

	// layer 1, check arg
	arg, argOk := pkt.Body[KeyArg]
	if argOk && len(arg) == 0 {
		argOk = false
	}
	switch funcStr {
	case "UpsertStock", "Consume", "MarkPurchased", "SaveRecipe", "PrepareRecipe", "RecipeCost":
		if !argOk {
			return respErr(pkt, StatusNoArg, ErrReqHasNoArg)
		}
	}

	k := s.kitchen
	var (
		result any
		err    error
	)

	// layer last
	switch funcStr {
	case "ListStock":
		result = k.Stock.All(ctx)
	case "UpsertStock":
		var item pantry.StockItem
		if err := msgpack.Unmarshal(arg, &item); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		result, err = k.Stock.Upsert(ctx, item)
	case "Categories":
		result = k.Stock.Categories(ctx)
	case "Consume":
		var lines []pantry.ConsumeLine
		if err := msgpack.Unmarshal(arg, &lines); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		result, err = k.Stock.Consume(ctx, lines)
	case "BelowMinimum":
		result = k.Stock.BelowMinimum(ctx)
	case "GenerateShopping":
		result, err = k.RefreshShopping(ctx)
	case "ShoppingList":
		result = k.Shopping.Items(ctx)
	case "MarkPurchased":
		var id string
		if err := msgpack.Unmarshal(arg, &id); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		err = k.Shopping.MarkPurchased(ctx, id)
	case "ClearPurchased":
		err = k.Shopping.ClearPurchased(ctx)
	case "ListRecipes":
		result = k.Recipes.List(ctx)
	case "SaveRecipe":
		var draft pantry.Recipe
		if err := msgpack.Unmarshal(arg, &draft); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		var saved SavedRecipe
		saved.Recipe, saved.Report, err = k.SaveRecipe(ctx, draft)
		result = saved
	case "PrepareRecipe":
		var id string
		if err := msgpack.Unmarshal(arg, &id); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		result, err = k.PrepareRecipe(ctx, id)
	case "RecipeCost":
		var id string
		if err := msgpack.Unmarshal(arg, &id); err != nil {
			return respErr(pkt, StatusBadArg, err)
		}
		rc, found := k.Recipes.Get(ctx, id)
		if !found {
			return respErr(pkt, StatusNotFound, pantry.ErrNotFound)
		}
		result = Cost{Total: pantry.TotalCost(&rc), PerPortion: pantry.CostPerPortion(&rc)}
	}
	if err != nil {
		s.log.Warn("rpc %s: %v", funcStr, err)
		return respErr(pkt, statusOf(err), err)
	}
	return respOK(pkt, result)
}

func statusOf(err error) int32 {
	switch {
	case errors.Is(err, pantry.ErrValidation):
		return StatusInvalid
	case errors.Is(err, pantry.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, pantry.ErrUnitNotConvertible):
		return StatusNotConvertible
	default:
		return StatusExecFailed
	}
}

func respOK(req *Packet, result any) *Packet {
	resp := &Packet{
		ID:   req.ID,
		Type: TypeResponse,
		Body: map[string][]byte{
			KeyStatus:  encodeStatus(StatusOK),
			KeyMessage: []byte("ok"),
		},
	}
	if result != nil {
		b, err := msgpack.Marshal(result)
		if err != nil {
			return respErr(req, StatusExecFailed, err)
		}
		resp.Body[KeyResult] = b
	}
	return resp
}

func respErr(req *Packet, code int32, err error) *Packet {
	return &Packet{
		ID:   req.ID,
		Type: TypeResponse,
		Body: map[string][]byte{
			KeyStatus:  encodeStatus(code),
			KeyMessage: []byte(err.Error()),
		},
	}
}

// ServeConn answers requests on conn in arrival order until the peer hangs
// up or ctx is cancelled.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var pb PacketBuffer
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			pkts, ferr := pb.Feed(buf[:n])
			for _, pkt := range pkts {
				if pkt.Type != TypeRequest {
					continue
				}
				if werr := WriteFrame(conn, s.ProcessPkt(ctx, pkt)); werr != nil {
					return werr
				}
			}
			if ferr != nil {
				s.log.Error("rpc %s: %v", conn.RemoteAddr(), ferr)
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.log.Debug("rpc: accepted %s", conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ServeConn(ctx, conn); err != nil {
				s.log.Warn("rpc %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
