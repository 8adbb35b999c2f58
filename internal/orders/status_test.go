package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusShipping}:  true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusShipping, StatusDelivered}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipping.Terminal())
	assert.False(t, Status("awaiting_payment").Valid())
	assert.True(t, StatusPending.CustomerCancellable())
	assert.False(t, StatusConfirmed.CustomerCancellable())
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{Items: []Shortage{
		{ProductID: "p1", Name: "Cold Brew", Requested: 5, Available: 2},
		{ProductID: "p2", Name: "Espresso", Requested: 1, Available: 0},
	}}
	assert.Equal(t, `insufficient stock: "Cold Brew" has 2 left (requested 5); "Espresso" is out of stock`, err.Error())
}

func TestSubtotal(t *testing.T) {
	lines := []Line{{Price: 45000, Quantity: 3}, {Price: 20000, Quantity: 1}}
	assert.Equal(t, int64(155000), Subtotal(lines))
	assert.Equal(t, int64(0), Subtotal(nil))
}
