// Package policy supplies the node-policy view the fee bumper needs when no
// full node is attached: recommended and minimum fee rates from a public
// oracle, and transaction broadcast over public APIs with a neutrino
// fallback.
package policy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// GetFeeRecommendation fetches the current recommended fee tiers from the
// configured oracle.
func GetFeeRecommendation() (FeeRecommendation, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(viper.GetString("fee_oracle_url"))
	if err != nil {
		return FeeRecommendation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FeeRecommendation{}, fmt.Errorf(
			"fee oracle returned status %d", resp.StatusCode)
	}

	var feeRec FeeRecommendation
	err = json.NewDecoder(resp.Body).Decode(&feeRec)
	return feeRec, err
}

// RateForPriority maps a named priority onto one of the oracle's tiers and
// returns it in sat/kvB.
func RateForPriority(feeRec FeeRecommendation, priority string) (int64, error) {
	var satPerVB int
	switch priority {
	case "fastest":
		satPerVB = feeRec.FastestFee
	case "half_hour":
		satPerVB = feeRec.HalfHourFee
	case "hour":
		satPerVB = feeRec.HourFee
	case "economy":
		satPerVB = feeRec.EconomyFee
	case "minimum":
		satPerVB = feeRec.MinimumFee
	default:
		return 0, fmt.Errorf("unknown fee priority %q", priority)
	}
	return int64(satPerVB) * 1000, nil
}

// MempoolMinRate returns the oracle's mempool admission floor in sat/kvB,
// falling back to the configured value when the oracle is unreachable.
func MempoolMinRate() int64 {
	feeRec, err := GetFeeRecommendation()
	if err != nil || feeRec.MinimumFee <= 0 {
		return viper.GetInt64("mempool_min_fee")
	}
	return int64(feeRec.MinimumFee) * 1000
}

// EstimateMinRate returns the lowest rate the oracle expects to confirm at
// all, in sat/kvB, with the configured relay floor as a lower bound.
func EstimateMinRate() int64 {
	min := viper.GetInt64("min_relay_fee")
	feeRec, err := GetFeeRecommendation()
	if err != nil {
		return min
	}
	if rate := int64(feeRec.EconomyFee) * 1000; rate > min {
		return rate
	}
	return min
}
