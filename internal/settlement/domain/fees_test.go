package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFees(t *testing.T) {
	cases := []struct {
		name        string
		gross       int64
		hasReferrer bool
		want        FeeSplit
	}{
		{
			name:        "round amount with referrer",
			gross:       100000,
			hasReferrer: true,
			want:        FeeSplit{Gross: 100000, TotalFee: 2000, ReferralShare: 500, PlatformShare: 1500, SellerNet: 98000},
		},
		{
			name:        "round amount without referrer",
			gross:       100000,
			hasReferrer: false,
			want:        FeeSplit{Gross: 100000, TotalFee: 2000, ReferralShare: 0, PlatformShare: 2000, SellerNet: 98000},
		},
		{
			name:        "odd amount floors toward the seller",
			gross:       99999,
			hasReferrer: true,
			want:        FeeSplit{Gross: 99999, TotalFee: 1999, ReferralShare: 499, PlatformShare: 1500, SellerNet: 98000},
		},
		{
			name:        "tiny amount yields zero fee",
			gross:       49,
			hasReferrer: true,
			want:        FeeSplit{Gross: 49, TotalFee: 0, ReferralShare: 0, PlatformShare: 0, SellerNet: 49},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitFees(tc.gross, tc.hasReferrer)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got.Gross, got.SellerNet+got.PlatformShare+got.ReferralShare)
		})
	}
}

func TestRefundAmount(t *testing.T) {
	assert.Equal(t, int64(98000), RefundAmount(100000))
	assert.Equal(t, int64(98000), RefundAmount(99999))
	assert.Equal(t, int64(49), RefundAmount(49))
}
