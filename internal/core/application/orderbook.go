package application

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DeepBook normalizes every price as if the base asset had 9 decimals.
const normalizedBaseDecimals = 9

// Order is the leaf item of a DeepBook book side.
type Order struct {
	BalanceManagerID string          `json:"balance_manager_id"`
	OrderID          domain.SliceKey `json:"order_id"`
	ClientOrderID    uint64          `json:"client_order_id"`
	Quantity         uint64          `json:"quantity"`
	FilledQuantity   uint64          `json:"filled_quantity"`
	FeeIsDeep        bool            `json:"fee_is_deep"`
	Epoch            uint64          `json:"epoch"`
	Status           uint8           `json:"status"`
	ExpireTimestamp  uint64          `json:"expire_timestamp"`
}

// Price is encoded in bits 64 to 126 of the order id.
func (o Order) Price() uint64 {
	return o.OrderID.Rsh64() & (math.MaxUint64 >> 1)
}

// IsBid returns whether the order sits on the bid side, ie. bit 127 of the
// order id is unset.
func (o Order) IsBid() bool {
	return o.OrderID.Bit(127) == 0
}

func (o Order) Remaining() uint64 {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

type orderJSON struct {
	BalanceManagerID json.RawMessage `json:"balance_manager_id"`
	OrderID          domain.SliceKey `json:"order_id"`
	ClientOrderID    jsonUint64      `json:"client_order_id"`
	Quantity         jsonUint64      `json:"quantity"`
	FilledQuantity   jsonUint64      `json:"filled_quantity"`
	FeeIsDeep        bool            `json:"fee_is_deep"`
	Epoch            jsonUint64      `json:"epoch"`
	Status           jsonUint64      `json:"status"`
	ExpireTimestamp  jsonUint64      `json:"expire_timestamp"`
}

// DecodeOrder is the ItemDecoder of DeepBook book sides.
func DecodeOrder(raw json.RawMessage) (Order, error) {
	var payload orderJSON
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Order{}, err
	}
	if payload.Status > math.MaxUint8 {
		return Order{}, fmt.Errorf("invalid order status %d", payload.Status)
	}

	return Order{
		BalanceManagerID: parseMoveID(payload.BalanceManagerID),
		OrderID:          payload.OrderID,
		ClientOrderID:    uint64(payload.ClientOrderID),
		Quantity:         uint64(payload.Quantity),
		FilledQuantity:   uint64(payload.FilledQuantity),
		FeeIsDeep:        payload.FeeIsDeep,
		Epoch:            uint64(payload.Epoch),
		Status:           uint8(payload.Status),
		ExpireTimestamp:  uint64(payload.ExpireTimestamp),
	}, nil
}

// parseMoveID accepts both the plain "0x.." rendering of an ID and the
// {"id": "0x.."} / {"bytes": "0x.."} struct ones.
func parseMoveID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var wrapped struct {
		ID    string `json:"id"`
		Bytes string `json:"bytes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped.ID != "" {
			return wrapped.ID
		}
		return wrapped.Bytes
	}
	return ""
}

type PriceLevel struct {
	Price         uint64 `json:"price"`
	TotalQuantity uint64 `json:"total_quantity"`
	OrderCount    int    `json:"order_count"`
}

// AggregateLevels groups orders by price, skipping fully filled ones. Bids
// are sorted by descending price, asks by ascending one.
func AggregateLevels(orders []Order, isBid bool) []PriceLevel {
	levels := make(map[uint64]*PriceLevel)
	for _, order := range orders {
		remaining := order.Remaining()
		if remaining == 0 {
			continue
		}
		level, ok := levels[order.Price()]
		if !ok {
			level = &PriceLevel{Price: order.Price()}
			levels[order.Price()] = level
		}
		level.TotalQuantity += remaining
		level.OrderCount++
	}

	result := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		result = append(result, *level)
	}
	sort.Slice(result, func(i, j int) bool {
		if isBid {
			return result[i].Price > result[j].Price
		}
		return result[i].Price < result[j].Price
	})
	return result
}

type OrderBook struct {
	Bids          []PriceLevel                `json:"bids"`
	Asks          []PriceLevel                `json:"asks"`
	Checkpoint    domain.Checkpoint           `json:"checkpoint"`
	BaseDecimals  uint8                       `json:"base_decimals"`
	QuoteDecimals uint8                       `json:"quote_decimals"`
	BidsReport    domain.ReconstructionReport `json:"bids_report"`
	AsksReport    domain.ReconstructionReport `json:"asks_report"`
}

// PriceDivisor converts raw prices to quote units per whole base unit.
func (b *OrderBook) PriceDivisor() float64 {
	normalization := math.Pow10(normalizedBaseDecimals - int(b.BaseDecimals))
	return math.Pow10(int(b.QuoteDecimals)) * normalization
}

func (b *OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return float64(b.Bids[0].Price) / b.PriceDivisor(), true
}

func (b *OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return float64(b.Asks[0].Price) / b.PriceDivisor(), true
}

func (b *OrderBook) MidPrice() (float64, bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, false
	}
	sum := float64(b.Bids[0].Price) + float64(b.Asks[0].Price)
	return sum / 2 / b.PriceDivisor(), true
}

// SpreadBps returns the spread between best ask and best bid in basis
// points of the integer mid price.
func (b *OrderBook) SpreadBps() (uint64, bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, false
	}
	bid, ask := b.Bids[0].Price, b.Asks[0].Price
	if bid == 0 || ask == 0 {
		return 0, false
	}
	// prices fit in 63 bits
	mid := (bid + ask) / 2
	if mid == 0 {
		return 0, false
	}
	spread := ask - bid
	if bid > ask {
		spread = bid - ask
	}
	return spread * 10000 / mid, true
}

// IsComplete returns whether both sides were fully reconstructed.
func (b *OrderBook) IsComplete() bool {
	return b.BidsReport.IsComplete() && b.AsksReport.IsComplete()
}

// Pool identifies the two book sides of a DeepBook pool.
type Pool struct {
	Name          string
	Bids          domain.ObjectID
	Asks          domain.ObjectID
	BaseDecimals  uint8
	QuoteDecimals uint8
}

type BookService interface {
	Snapshot(
		ctx context.Context, pool Pool, checkpoint domain.Checkpoint,
	) (*OrderBook, error)
	// Orders returns the orders of a single book side.
	Orders(
		ctx context.Context, side domain.ObjectID, checkpoint domain.Checkpoint,
	) (*Result[Order], error)
}

type bookService struct {
	reconstructor Reconstructor[Order]
	filter        OrderFilter
}

// NewBookService returns a service projecting DeepBook book sides into
// aggregated order books. A nil filter keeps every order.
func NewBookService(
	store ports.VersionedObjectStore, filter OrderFilter, opts ...Option,
) (BookService, error) {
	reconstructor, err := NewReconstructor(store, DecodeOrder, opts...)
	if err != nil {
		return nil, err
	}
	return &bookService{reconstructor, filter}, nil
}

func (s *bookService) Orders(
	ctx context.Context, side domain.ObjectID, checkpoint domain.Checkpoint,
) (*Result[Order], error) {
	return s.reconstructor.Reconstruct(ctx, side, checkpoint)
}

func (s *bookService) Snapshot(
	ctx context.Context, pool Pool, checkpoint domain.Checkpoint,
) (*OrderBook, error) {
	var bids, asks *Result[Order]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.reconstructor.Reconstruct(gctx, pool.Bids, checkpoint)
		if err != nil {
			return fmt.Errorf("failed to reconstruct bids: %w", err)
		}
		bids = res
		return nil
	})
	g.Go(func() error {
		res, err := s.reconstructor.Reconstruct(gctx, pool.Asks, checkpoint)
		if err != nil {
			return fmt.Errorf("failed to reconstruct asks: %w", err)
		}
		asks = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	book := &OrderBook{
		Bids:          AggregateLevels(s.applyFilter(bids.Items), true),
		Asks:          AggregateLevels(s.applyFilter(asks.Items), false),
		Checkpoint:    checkpoint,
		BaseDecimals:  pool.BaseDecimals,
		QuoteDecimals: pool.QuoteDecimals,
		BidsReport:    bids.Report,
		AsksReport:    asks.Report,
	}

	log.WithFields(log.Fields{
		"pool":       pool.Name,
		"checkpoint": uint64(checkpoint),
		"bid_levels": len(book.Bids),
		"ask_levels": len(book.Asks),
		"complete":   book.IsComplete(),
	}).Debug("built order book snapshot")

	return book, nil
}

func (s *bookService) applyFilter(orders []Order) []Order {
	if s.filter == nil {
		return orders
	}
	filtered := make([]Order, 0, len(orders))
	for _, order := range orders {
		if s.filter(order) {
			filtered = append(filtered, order)
		}
	}
	return filtered
}
