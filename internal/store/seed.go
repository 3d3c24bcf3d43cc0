package store

import "github.com/chungtau/mti-gateway/internal/model"

// DemoMerchants are loaded in mock and dev mode so every payout branch can be
// exercised without account management.
func DemoMerchants() []model.MerchantPayoutSettings {
	return []model.MerchantPayoutSettings{
		{
			MerchantID:          "MERCH_BANK_001",
			DefaultPayoutMethod: model.PayoutBank,
			BankAccount: model.BankAccount{
				AccountNumber:     "000123456789",
				RoutingNumber:     "110000000",
				AccountHolderName: "Demo Bank Merchant",
			},
		},
		{
			MerchantID:          "MERCH_CRYPTO_001",
			DefaultPayoutMethod: model.PayoutCrypto,
			CryptoWallet: model.CryptoWallet{
				BTCAddress: "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
				ETHAddress: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
			},
		},
		{
			// No wallet on file: every completed transaction ends in payout_failed.
			MerchantID:          "MERCH_NOWALLET_001",
			DefaultPayoutMethod: model.PayoutCrypto,
		},
	}
}

// SeedMemory loads DemoMerchants into m.
func SeedMemory(m *Memory) {
	for _, s := range DemoMerchants() {
		m.PutMerchant(s)
	}
}
