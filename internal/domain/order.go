package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PaymentMethod: способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "Cartão"
	PaymentMethodPIX  PaymentMethod = "PIX"
	PaymentMethodCash PaymentMethod = "Dinheiro"
)

// Valid проверяет, что способ оплаты входит в поддерживаемый набор.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPIX, PaymentMethodCash:
		return true
	default:
		return false
	}
}

// Size: размер футболки.
type Size string

const (
	SizeP  Size = "P"
	SizeM  Size = "M"
	SizeG  Size = "G"
	SizeGG Size = "GG"
)

func (s Size) Valid() bool {
	switch s {
	case SizeP, SizeM, SizeG, SizeGG:
		return true
	default:
		return false
	}
}

// ProductType: крой футболки.
type ProductType string

const (
	ProductTypeOversized ProductType = "Oversized"
	ProductTypeRegular   ProductType = "Regular"
)

func (t ProductType) Valid() bool {
	return t == ProductTypeOversized || t == ProductTypeRegular
}

// Address хранит адрес доставки. В JSON поля плоские, как в исходном API.
type Address struct {
	PostalCode   string       `json:"cep" bson:"cep"`
	Street       string       `json:"rua" bson:"rua"`
	Number       StreetNumber `json:"numero" bson:"numero"`
	Neighborhood string       `json:"bairro" bson:"bairro"`
	Complement   string       `json:"complemento,omitempty" bson:"complemento,omitempty"`
}

// StreetNumber: номер дома. Из JSON принимается числом или строкой с числом,
// формы фронтенда присылают его строкой.
type StreetNumber int

func (n *StreetNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return NewValidationError("numero", "must be a number")
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*n = 0
			return nil
		}
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return NewValidationError("numero", "must be a number")
	}
	*n = StreetNumber(v)
	return nil
}

// LineItem: одна позиция корзины внутри заказа.
type LineItem struct {
	ProductID   string      `json:"id_camiseta" bson:"id_camiseta"`
	Slug        string      `json:"slug,omitempty" bson:"slug,omitempty"`
	Size        Size        `json:"tamanho" bson:"tamanho"`
	ProductType ProductType `json:"tipo_camiseta" bson:"tipo_camiseta"`
	Price       float64     `json:"preco" bson:"preco"`
	Coupon      bool        `json:"cupom,omitempty" bson:"cupom,omitempty"`
}

// Order: денормализованная запись заказа.
// Address встроен, чтобы в JSON поля адреса оставались плоскими.
//
// ID: внутренний идентификатор хранилища, Number: последовательный номер,
// который видит клиент. Number присваивается один раз при создании и больше не меняется.
type Order struct {
	ID            string    `json:"_id"`
	Number        int64     `json:"id"`
	CreatedAt     time.Time `json:"data_pedido"`
	UpdatedAt     time.Time `json:"updatedAt"`
	RecipientName string    `json:"nome_destinario"`
	ContactPhone  string    `json:"telefone_contato"`
	Address
	PaymentMethod  PaymentMethod `json:"forma_pagamento"`
	TotalValue     float64       `json:"valor_total"`
	Items          []LineItem    `json:"itens"`
	DeliveryStatus *string       `json:"statusEntrega,omitempty"`
	OrderStatus    *string       `json:"statusPedido,omitempty"`
}

// StatusPatch описывает изменяемые после создания поля заказа.
type StatusPatch struct {
	DeliveryStatus *string `json:"statusEntrega,omitempty"`
	OrderStatus    *string `json:"statusPedido,omitempty"`
}

// Empty сообщает, что в патче нет ни одного поля для обновления.
func (p StatusPatch) Empty() bool {
	return p.DeliveryStatus == nil && p.OrderStatus == nil
}

// Apply переносит заданные поля патча в заказ.
func (p StatusPatch) Apply(o *Order) {
	if p.DeliveryStatus != nil {
		v := *p.DeliveryStatus
		o.DeliveryStatus = &v
	}
	if p.OrderStatus != nil {
		v := *p.OrderStatus
		o.OrderStatus = &v
	}
}

// ValidateInvariants проверяет обязательные поля и инварианты заказа.
// Возвращает nil или *ValidationError со списком проблемных полей.
func (o *Order) ValidateInvariants() error {
	v := &ValidationError{}

	if strings.TrimSpace(o.RecipientName) == "" {
		v.Add("nome_destinario", "is required")
	}
	if strings.TrimSpace(o.ContactPhone) == "" {
		v.Add("telefone_contato", "is required")
	}
	if strings.TrimSpace(o.Address.PostalCode) == "" {
		v.Add("cep", "is required")
	}
	if strings.TrimSpace(o.Address.Street) == "" {
		v.Add("rua", "is required")
	}
	if o.Address.Number <= 0 {
		v.Add("numero", "is required")
	}
	if strings.TrimSpace(o.Address.Neighborhood) == "" {
		v.Add("bairro", "is required")
	}
	if !o.PaymentMethod.Valid() {
		v.Add("forma_pagamento", "must be one of Cartão, PIX, Dinheiro")
	}
	if o.TotalValue < 0 {
		v.Add("valor_total", "must be non-negative")
	}
	if len(o.Items) == 0 {
		v.Add("itens", "order must contain at least one item")
	}
	for i, item := range o.Items {
		validateLineItem(v, i, item)
	}

	return v.OrNil()
}

func validateLineItem(v *ValidationError, idx int, item LineItem) {
	prefix := "itens[" + strconv.Itoa(idx) + "]."
	if strings.TrimSpace(item.ProductID) == "" {
		v.Add(prefix+"id_camiseta", "is required")
	}
	if !item.Size.Valid() {
		v.Add(prefix+"tamanho", "must be one of P, M, G, GG")
	}
	if !item.ProductType.Valid() {
		v.Add(prefix+"tipo_camiseta", "must be one of Oversized, Regular")
	}
	if item.Price < 0 {
		v.Add(prefix+"preco", "must be non-negative")
	}
}
