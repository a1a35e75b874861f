package models

// Protocol fee parameters, matching the world contract: the fee on a buy
// or claim is floor(amount * rate / denominator).
const (
	ProtocolFeeRate    = 900_000
	FeeRateDenominator = 10_000_000
)

// ProtocolFee returns the fee taken from amount.
func ProtocolFee(amount U256) U256 {
	return amount.MulDiv(ProtocolFeeRate, FeeRateDenominator)
}
