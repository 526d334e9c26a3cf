// Package common contains shared constants and sentinel errors used across
// the settlement service and its CLI client.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound and outbound requests.
const AccessTokenHeaderName = "access_token"

// Asset and currency codes known to the service.
const (
	AssetSRT = "SRT"
	AssetXLM = "XLM"

	CurrencyXOF = "XOF"
	CurrencyGHS = "GHS"
)

// AccountNumberPrefix is prepended to the six random digits of every
// internal account number.
const AccountNumberPrefix = "AFS"
