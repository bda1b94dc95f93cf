package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsDuplicateSequence(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "duplicate sequence error",
			err:  ErrDuplicateSequence,
			want: true,
		},
		{
			name: "wrapped duplicate sequence error",
			err:  fmt.Errorf("insert order: %w", ErrDuplicateSequence),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsDuplicateSequence(tt.err)
			if got != tt.want {
				t.Errorf("IsDuplicateSequence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "order", err: ErrOrderNotFound, want: true},
		{name: "product", err: fmt.Errorf("get: %w", ErrProductNotFound), want: true},
		{name: "coupon", err: errors.Join(ErrCouponNotFound, errors.New("ctx")), want: true},
		{name: "validation", err: ErrValidation, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	if v.OrNil() != nil {
		t.Fatal("empty validation error must collapse to nil")
	}

	v.Add("itens", "order must contain at least one item")
	err := v.OrNil()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected errors.Is ErrValidation, got %v", err)
	}
	if got := err.Error(); got != "validation failed: itens order must contain at least one item" {
		t.Fatalf("unexpected message: %q", got)
	}

	wrapped := fmt.Errorf("create: %w", NewValidationError("cep", "is required"))
	if !errors.Is(wrapped, ErrValidation) {
		t.Fatal("wrapped validation error must match ErrValidation")
	}
}
