package domain

import (
	"strings"
	"time"
)

// Product: футболка из каталога.
type Product struct {
	ID        string      `json:"_id"`
	Name      string      `json:"nome"`
	Size      string      `json:"tamanho"`
	Type      ProductType `json:"tipo"`
	Price     float64     `json:"preco"`
	Image     string      `json:"imagem,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Validate проверяет обязательные поля футболки.
func (p *Product) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(p.Name) == "" {
		v.Add("nome", "is required")
	}
	if strings.TrimSpace(p.Size) == "" {
		v.Add("tamanho", "is required")
	}
	if !p.Type.Valid() {
		v.Add("tipo", "must be one of Oversized, Regular")
	}
	if p.Price < 0 {
		v.Add("preco", "must be non-negative")
	}
	return v.OrNil()
}

// Coupon: скидочный купон. Discount задаётся в процентах.
type Coupon struct {
	ID        string    `json:"_id"`
	Code      string    `json:"codigo"`
	Discount  float64   `json:"desconto"`
	Active    bool      `json:"ativo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Coupon) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(c.Code) == "" {
		v.Add("codigo", "is required")
	}
	if c.Discount < 0 || c.Discount > 100 {
		v.Add("desconto", "must be between 0 and 100")
	}
	return v.OrNil()
}
