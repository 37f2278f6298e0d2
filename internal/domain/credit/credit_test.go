package credit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	d := decimal.NewFromInt

	tests := []struct {
		name      string
		requested decimal.Decimal
		balance   decimal.Decimal
		payable   decimal.Decimal
		expected  decimal.Decimal
		wantCode  string
		wantErr   error
	}{
		{name: "nothing requested", requested: d(0), balance: d(100), payable: d(50), expected: d(0)},
		{name: "within balance and total", requested: d(40), balance: d(100), payable: d(50), expected: d(40)},
		{name: "whole balance", requested: d(100), balance: d(100), payable: d(500), expected: d(100)},
		{name: "exactly payable", requested: d(50), balance: d(100), payable: d(50), expected: d(50)},
		{name: "over balance", requested: d(101), balance: d(100), payable: d(500), wantCode: CodeOverBalance},
		{name: "over balance wins over total", requested: d(900), balance: d(100), payable: d(50), wantCode: CodeOverBalance},
		{name: "over total", requested: d(60), balance: d(100), payable: d(50), wantCode: CodeOverTotal},
		{name: "negative", requested: d(-1), balance: d(100), payable: d(50), wantErr: ErrNegativeRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.requested, tt.balance, tt.payable)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != "":
				var cErr *Error
				require.ErrorAs(t, err, &cErr)
				assert.Equal(t, tt.wantCode, cErr.Code)
			default:
				require.NoError(t, err)
				assert.True(t, got.Equal(tt.expected), "got %s", got)
				assert.True(t, got.LessThanOrEqual(tt.balance))
			}
		})
	}
}

func TestSigned(t *testing.T) {
	assert.True(t, Signed(decimal.NewFromInt(25_000)).Equal(decimal.NewFromInt(-25_000)))
	assert.True(t, Signed(decimal.Zero).IsZero())
}
