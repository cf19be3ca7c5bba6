package internal

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log"
	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

const (
	collectionLog          = "payment_log"
	collectionTransactions = "transactions"
	collectionCallbacks    = "payment_callbacks"
)

type MongoDB struct {
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
	}
	return client, nil
}

// EnsureIndexes creates the unique transaction id index that makes a signed id single-use.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "txnid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create txnid index: %w", err)
	}
	return nil
}

func (m *MongoDB) GetTransaction(ctx context.Context, id string) (*entity.Transaction, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "txnid", Value: id}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	var transaction entity.Transaction
	if err = collection.FindOne(ctx, filter).Decode(&transaction); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrTransactionNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) SaveTransaction(ctx context.Context, transaction *entity.Transaction) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	if _, err = collection.InsertOne(ctx, transaction); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", entity.ErrDuplicateTransaction, transaction.Id)
		}
		return err
	}
	return nil
}

// CompleteTransaction updates the transaction only while it is still pending and
// reports whether this call changed it.
func (m *MongoDB) CompleteTransaction(ctx context.Context, id string, result *entity.TransactionResult) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "txnid", Value: id}, {Key: "status", Value: entity.StatusPending}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: result.Status},
			{Key: "gateway_status", Value: result.GatewayStatus},
			{Key: "payment_id", Value: result.PaymentId},
			{Key: "payment_error", Value: result.PaymentError},
			{Key: "time_closed", Value: result.TimeClosed},
		}},
	}
	res, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m *MongoDB) AddRefund(ctx context.Context, id string, refund *entity.Refund) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "txnid", Value: id}}
	update := bson.D{{Key: "$push", Value: bson.D{{Key: "refunds", Value: refund}}}}
	res, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return entity.ErrTransactionNotFound
	}
	return nil
}

func (m *MongoDB) SaveCallback(ctx context.Context, record *entity.CallbackRecord) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionCallbacks)
	_, err = collection.InsertOne(ctx, record)
	return err
}

// WriteLogMessage stores a log record; with log_records set, the collection is capped
// to that many newest records.
func (m *MongoDB) WriteLogMessage(ctx context.Context, data services.Data) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionLog)
	if _, err = collection.InsertOne(ctx, data); err != nil {
		return err
	}
	if m.logRecordsNumber > 0 {
		return m.trimLog(ctx, collection)
	}
	return nil
}

func (m *MongoDB) trimLog(ctx context.Context, collection *mongo.Collection) error {
	count, err := collection.CountDocuments(ctx, bson.D{})
	if err != nil || count <= m.logRecordsNumber {
		return err
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "time", Value: -1}}).SetSkip(m.logRecordsNumber)
	var oldest entity.LogMessage
	if err = collection.FindOne(ctx, bson.D{}, opts).Decode(&oldest); err != nil {
		return err
	}
	_, err = collection.DeleteMany(ctx, bson.D{{Key: "time", Value: bson.D{{Key: "$lte", Value: oldest.Time}}}})
	return err
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	err := connection.Disconnect(ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}
