package application

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// OrderFilter tells whether an order must be kept in a book projection.
type OrderFilter func(Order) bool

// orderEnv is the environment filter expressions are evaluated against.
type orderEnv struct {
	OrderID          string
	BalanceManagerID string
	ClientOrderID    uint64
	Price            uint64
	IsBid            bool
	Quantity         uint64
	Filled           uint64
	Remaining        uint64
	Epoch            uint64
	Status           uint8
	ExpireTimestamp  uint64
}

func newOrderEnv(order Order) orderEnv {
	return orderEnv{
		OrderID:          order.OrderID.String(),
		BalanceManagerID: order.BalanceManagerID,
		ClientOrderID:    order.ClientOrderID,
		Price:            order.Price(),
		IsBid:            order.IsBid(),
		Quantity:         order.Quantity,
		Filled:           order.FilledQuantity,
		Remaining:        order.Remaining(),
		Epoch:            order.Epoch,
		Status:           order.Status,
		ExpireTimestamp:  order.ExpireTimestamp,
	}
}

// CompileOrderFilter compiles a boolean expression over the fields of an
// order, ie. `Remaining >= 1000000 && Price < 4000000`. An empty expression
// returns a nil filter. Orders the expression fails to evaluate on are
// dropped.
func CompileOrderFilter(expression string) (OrderFilter, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	program, err := expr.Compile(expression, expr.Env(orderEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid order filter: %s", err)
	}

	return func(order Order) bool {
		return runOrderFilter(program, order)
	}, nil
}

func runOrderFilter(program *vm.Program, order Order) bool {
	out, err := expr.Run(program, newOrderEnv(order))
	if err != nil {
		return false
	}
	keep, ok := out.(bool)
	return ok && keep
}
