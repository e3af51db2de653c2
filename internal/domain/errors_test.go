package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "product not found",
			err:  ErrProductNotFound,
			want: true,
		},
		{
			name: "order not found",
			err:  ErrOrderNotFound,
			want: true,
		},
		{
			name: "wrapped order not found",
			err:  fmt.Errorf("delete order 7: %w", ErrOrderNotFound),
			want: true,
		},
		{
			name: "joined product not found",
			err:  errors.Join(errors.New("context"), ErrProductNotFound),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOutboxPublish,
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
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	if ErrProductNotFound.Error() != "product not found" {
		t.Errorf("unexpected message: %q", ErrProductNotFound.Error())
	}
	if ErrOrderNotFound.Error() != "order not found" {
		t.Errorf("unexpected message: %q", ErrOrderNotFound.Error())
	}
	if errors.Is(ErrProductNotFound, ErrOrderNotFound) {
		t.Error("product and order not found errors must be distinct")
	}
}

func TestOrder_ProductIDs(t *testing.T) {
	order := Order{
		ID: 1,
		Products: []*Product{
			{ID: 3, Name: "apple"},
			{ID: 1, Name: "pear"},
			{ID: 3, Name: "apple"},
		},
	}

	ids := order.ProductIDs()
	want := []int64{3, 1, 3}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}

	empty := Order{}
	if got := empty.ProductIDs(); len(got) != 0 {
		t.Errorf("expected no ids for empty order, got %v", got)
	}
}
