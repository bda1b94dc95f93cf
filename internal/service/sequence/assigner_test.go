package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/memory"
)

type stubSource struct {
	last int64
	err  error
}

func (s stubSource) LastNumber(context.Context) (int64, error) {
	return s.last, s.err
}

func TestAssigner_Next(t *testing.T) {
	tests := []struct {
		name string
		last int64
		want int64
	}{
		{name: "empty store", last: 0, want: 1},
		{name: "after existing", last: 41, want: 42},
		{name: "negative treated as empty", last: -3, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAssigner(stubSource{last: tt.last}).Next(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAssigner_NextWrapsStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	_, err := NewAssigner(stubSource{err: storeErr}).Next(context.Background())
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.ErrorIs(t, err, storeErr)
}

func TestAssigner_NextSkipsDeletedNumbers(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	assigner := NewAssigner(repo)

	var lastID string
	for i := 0; i < 3; i++ {
		number, err := assigner.Next(ctx)
		require.NoError(t, err)
		created, err := repo.Create(ctx, domain.Order{
			Number:        number,
			CreatedAt:     time.Now().UTC(),
			RecipientName: "Ana",
			ContactPhone:  "21999990000",
			Address:       domain.Address{PostalCode: "01001-000", Street: "Praça da Sé", Number: 1, Neighborhood: "Sé"},
			PaymentMethod: domain.PaymentMethodPIX,
			Items:         []domain.LineItem{{ProductID: "c1", Size: domain.SizeM, ProductType: domain.ProductTypeRegular, Price: 30}},
		})
		require.NoError(t, err)
		lastID = created.ID
	}

	require.NoError(t, repo.Delete(ctx, lastID))

	next, err := assigner.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), next)
}
