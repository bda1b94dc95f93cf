package sequence

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// Source отдаёт последний выданный номер заказа.
// Хранилище учитывает и живые заказы, и номера удалённых.
type Source interface {
	LastNumber(ctx context.Context) (int64, error)
}

// Assigner вычисляет кандидата на следующий номер заказа.
//
// Номер не кэшируется в процессе: каждый вызов читает хранилище. Два конкурентных
// вызова могут вернуть одинаковый номер, уникальность гарантирует хранилище
// (ErrDuplicateSequence), а сервис заказов повторяет попытку.
type Assigner struct {
	source Source
}

// NewAssigner создаёт Assigner поверх источника номеров.
func NewAssigner(source Source) *Assigner {
	return &Assigner{source: source}
}

// Next возвращает 1 для пустого хранилища, иначе последний номер + 1.
func (a *Assigner) Next(ctx context.Context) (int64, error) {
	last, err := a.source.LastNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("read last order number: %w: %w", domain.ErrPersistence, err)
	}
	if last < 0 {
		last = 0
	}
	return last + 1, nil
}
