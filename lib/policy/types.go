package policy

// FeeRecommendation mirrors the mempool.space recommended-fees payload.
// All values are in sat/vB.
type FeeRecommendation struct {
	FastestFee  int `json:"fastestFee"`
	HalfHourFee int `json:"halfHourFee"`
	HourFee     int `json:"hourFee"`
	EconomyFee  int `json:"economyFee"`
	MinimumFee  int `json:"minimumFee"`
}

// ElectrumConfig holds the configuration for the Electrum verifier
type ElectrumConfig struct {
	ServerAddr string
	UseSSL     bool
}
