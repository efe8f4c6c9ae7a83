package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoice_IsOverdue(t *testing.T) {
	due := "2024-06-09"
	tests := []struct {
		name   string
		status InvoiceStatus
		due    *string
		today  string
		want   bool
	}{
		{"past due sent", StatusSent, &due, "2024-06-10", true},
		{"due today", StatusSent, &due, "2024-06-09", false},
		{"paid", StatusPaid, &due, "2024-06-10", false},
		{"cancelled", StatusCancelled, &due, "2024-06-10", false},
		{"no due date", StatusDraft, nil, "2024-06-10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &Invoice{Status: tt.status, DueDate: tt.due}
			assert.Equal(t, tt.want, inv.IsOverdue(tt.today))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" paid ")
	assert.NoError(t, err)
	assert.Equal(t, StatusPaid, st)

	_, err = ParseStatus("REFUNDED")
	assert.Error(t, err)
}

func TestInvoice_ItemsTotal(t *testing.T) {
	inv := &Invoice{Items: []Item{{TotalPrice: 1500}, {TotalPrice: 2500}}}
	assert.Equal(t, int64(4000), inv.ItemsTotal())
}
