package model

// PayoutMethod names a settlement route for merchant proceeds.
type PayoutMethod string

const (
	PayoutBank   PayoutMethod = "bank"
	PayoutCrypto PayoutMethod = "crypto"
)

// BankAccount is the destination of a bank payout.
type BankAccount struct {
	AccountNumber     string `json:"accountNumber" bson:"accountNumber"`
	RoutingNumber     string `json:"routingNumber" bson:"routingNumber"`
	AccountHolderName string `json:"accountHolderName" bson:"accountHolderName"`
}

// Configured reports whether the account can receive a transfer.
func (b BankAccount) Configured() bool {
	return b.AccountNumber != "" && b.RoutingNumber != ""
}

// CryptoWallet holds one receiving address per supported asset.
type CryptoWallet struct {
	BTCAddress  string `json:"btcAddress,omitempty" bson:"btcAddress,omitempty"`
	ETHAddress  string `json:"ethAddress,omitempty" bson:"ethAddress,omitempty"`
	USDTAddress string `json:"usdtAddress,omitempty" bson:"usdtAddress,omitempty"`
}

// MerchantPayoutSettings is owned by account management; the engine only reads it.
type MerchantPayoutSettings struct {
	MerchantID          string       `json:"merchantId" bson:"merchantId"`
	DefaultPayoutMethod PayoutMethod `json:"defaultPayoutMethod" bson:"defaultPayoutMethod"`
	BankAccount         BankAccount  `json:"bankAccount" bson:"bankAccount"`
	CryptoWallet        CryptoWallet `json:"cryptoWallet" bson:"cryptoWallet"`
}
