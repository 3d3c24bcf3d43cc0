package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chungtau/mti-gateway/internal/model"
)

// merchantDocument is the subset of the account-management user document the
// gateway reads.
type merchantDocument struct {
	MerchantID     string         `bson:"merchantId"`
	PayoutSettings payoutDocument `bson:"payoutSettings"`
}

type payoutDocument struct {
	DefaultPayoutMethod model.PayoutMethod `bson:"defaultPayoutMethod"`
	BankAccount         model.BankAccount  `bson:"bankAccount"`
	CryptoWallet        model.CryptoWallet `bson:"cryptoWallet"`
}

// MongoMerchants reads payout settings from the users collection. The
// collection is owned by account management; the gateway never writes to it
// outside of dev seeding.
type MongoMerchants struct {
	collection *mongo.Collection
}

func NewMongoMerchants(client *mongo.Client, dbName string) *MongoMerchants {
	return &MongoMerchants{collection: client.Database(dbName).Collection("users")}
}

func (m *MongoMerchants) PayoutSettings(ctx context.Context, merchantID string) (*model.MerchantPayoutSettings, error) {
	var doc merchantDocument
	err := m.collection.FindOne(ctx, bson.D{{Key: "merchantId", Value: merchantID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find merchant %s: %w", merchantID, err)
	}

	return &model.MerchantPayoutSettings{
		MerchantID:          doc.MerchantID,
		DefaultPayoutMethod: doc.PayoutSettings.DefaultPayoutMethod,
		BankAccount:         doc.PayoutSettings.BankAccount,
		CryptoWallet:        doc.PayoutSettings.CryptoWallet,
	}, nil
}

// PutMerchant upserts the payout settings of a merchant, used in dev mode.
func (m *MongoMerchants) PutMerchant(ctx context.Context, s model.MerchantPayoutSettings) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "merchantId", Value: s.MerchantID},
		{Key: "payoutSettings", Value: payoutDocument{
			DefaultPayoutMethod: s.DefaultPayoutMethod,
			BankAccount:         s.BankAccount,
			CryptoWallet:        s.CryptoWallet,
		}},
	}}}
	_, err := m.collection.UpdateOne(ctx,
		bson.D{{Key: "merchantId", Value: s.MerchantID}},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert merchant %s: %w", s.MerchantID, err)
	}
	return nil
}

func (m *MongoMerchants) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}
