package domain

// Fee rates in basis points. The platform takes 2% of gross; half a percent
// of gross goes to the seller's referrer when one exists, out of the
// platform's cut, never the seller's.
const (
	TotalFeeBps      = 200
	ReferralShareBps = 50
	bpsDenominator   = 10000
)

// FeeSplit is the integer breakdown of one gross amount. All divisions floor,
// so SellerNet + PlatformShare + ReferralShare always reassembles Gross.
type FeeSplit struct {
	Gross         int64
	TotalFee      int64
	ReferralShare int64
	PlatformShare int64
	SellerNet     int64
}

// SplitFees computes the split for a gross amount in minor units. hasReferrer
// decides whether the referral share is carved out of the fee; without a
// referrer the whole fee is the platform's.
func SplitFees(gross int64, hasReferrer bool) FeeSplit {
	totalFee := gross * TotalFeeBps / bpsDenominator
	var referralShare int64
	if hasReferrer {
		referralShare = gross * ReferralShareBps / bpsDenominator
	}
	return FeeSplit{
		Gross:         gross,
		TotalFee:      totalFee,
		ReferralShare: referralShare,
		PlatformShare: totalFee - referralShare,
		SellerNet:     gross - totalFee,
	}
}

// RefundAmount is what a buyer gets back when a dispute resolves in their
// favor. The platform fee is not returned.
func RefundAmount(gross int64) int64 {
	return gross - gross*TotalFeeBps/bpsDenominator
}
