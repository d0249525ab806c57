package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

const (
	customersCollection   = "customers"
	entriesCollection     = "entries"
	paymentsCollection    = "payments"
	correctionsCollection = "corrections"
)

// ErrNotFound is returned when a looked up record does not exist.
var ErrNotFound = errors.New("record not found")

// Range bounds a date query as [From, To). Zero values leave a side open.
type Range struct {
	From time.Time
	To   time.Time
}

// MongoDBRepository stores customers, entries, payments and corrections.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{client: client, db: client.Database(dbName)}, nil
}

// EnsureIndexes creates the customer+date indexes used by period queries.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	byCustomerDate := mongo.IndexModel{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: 1}, {Key: "created_at", Value: 1}}}

	for _, name := range []string{entriesCollection, paymentsCollection} {
		if _, err := r.db.Collection(name).Indexes().CreateOne(ctx, byCustomerDate); err != nil {
			return fmt.Errorf("create %s index: %w", name, err)
		}
	}

	phone := mongo.IndexModel{Keys: bson.D{{Key: "phone", Value: 1}}}
	if _, err := r.db.Collection(customersCollection).Indexes().CreateOne(ctx, phone); err != nil {
		return fmt.Errorf("create customers index: %w", err)
	}
	return nil
}

// GetCustomer loads a customer by id.
func (r *MongoDBRepository) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	return r.findCustomer(ctx, bson.M{"_id": id})
}

// FindCustomerByPhone loads the customer registered with the given phone.
func (r *MongoDBRepository) FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	return r.findCustomer(ctx, bson.M{"phone": phone})
}

func (r *MongoDBRepository) findCustomer(ctx context.Context, filter bson.M) (models.Customer, error) {
	var customer models.Customer
	err := r.db.Collection(customersCollection).FindOne(ctx, filter).Decode(&customer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Customer{}, ErrNotFound
	}
	if err != nil {
		return models.Customer{}, fmt.Errorf("failed to load customer: %w", err)
	}
	return customer, nil
}

// ListCustomers returns every customer ordered by name.
func (r *MongoDBRepository) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(customersCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	customers := make([]models.Customer, 0)
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, fmt.Errorf("failed to decode customers: %w", err)
	}
	return customers, nil
}

// SaveCustomer upserts a customer record.
func (r *MongoDBRepository) SaveCustomer(ctx context.Context, customer models.Customer) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.db.Collection(customersCollection).ReplaceOne(ctx, bson.M{"_id": customer.ID}, customer, opts); err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

// InsertEntry saves a valuated entry.
func (r *MongoDBRepository) InsertEntry(ctx context.Context, entry models.Entry) error {
	doc, err := newEntryDocument(entry)
	if err != nil {
		return err
	}
	if _, err := r.db.Collection(entriesCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// GetEntry loads an entry by id.
func (r *MongoDBRepository) GetEntry(ctx context.Context, id string) (models.Entry, error) {
	var doc entryDocument
	err := r.db.Collection(entriesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Entry{}, ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("failed to load entry: %w", err)
	}
	return doc.toModel(), nil
}

// ListEntries returns the entries of a customer in the range, oldest first.
func (r *MongoDBRepository) ListEntries(ctx context.Context, customerID string, rng Range) ([]models.Entry, error) {
	cursor, err := r.db.Collection(entriesCollection).Find(ctx, rangeFilter(customerID, rng), chronological())
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}

	entries := make([]models.Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.toModel())
	}
	return entries, nil
}

// ApplyCorrection replaces a re-valuated entry and stores its audit record.
// Both writes share a transaction on replica sets; a standalone server
// rejects transactions, so there the writes run in sequence, entry first.
func (r *MongoDBRepository) ApplyCorrection(ctx context.Context, entry models.Entry, correction models.Correction) error {
	entryDoc, err := newEntryDocument(entry)
	if err != nil {
		return err
	}
	correctionDoc, err := newCorrectionDocument(correction)
	if err != nil {
		return err
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, r.replaceAndRecord(sc, entry.ID, entryDoc, correctionDoc)
	})
	if transactionsUnsupported(err) {
		return r.replaceAndRecord(ctx, entry.ID, entryDoc, correctionDoc)
	}
	return err
}

func (r *MongoDBRepository) replaceAndRecord(ctx context.Context, entryID string, entryDoc, correctionDoc interface{}) error {
	res, err := r.db.Collection(entriesCollection).ReplaceOne(ctx, bson.M{"_id": entryID}, entryDoc)
	if err != nil {
		return fmt.Errorf("failed to replace entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	if _, err := r.db.Collection(correctionsCollection).InsertOne(ctx, correctionDoc); err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}
	return nil
}

// illegalOperationCode is what a standalone mongod answers to a transaction.
const illegalOperationCode = 20

func transactionsUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == illegalOperationCode
}

// InsertPayment saves a payment.
func (r *MongoDBRepository) InsertPayment(ctx context.Context, payment models.Payment) error {
	doc, err := newPaymentDocument(payment)
	if err != nil {
		return err
	}
	if _, err := r.db.Collection(paymentsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// ListPayments returns the payments of a customer in the range, oldest first.
func (r *MongoDBRepository) ListPayments(ctx context.Context, customerID string, rng Range) ([]models.Payment, error) {
	cursor, err := r.db.Collection(paymentsCollection).Find(ctx, rangeFilter(customerID, rng), chronological())
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}

	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}

	payments := make([]models.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, doc.toModel())
	}
	return payments, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func rangeFilter(customerID string, rng Range) bson.M {
	filter := bson.M{"customer_id": customerID}

	date := bson.M{}
	if !rng.From.IsZero() {
		date["$gte"] = rng.From
	}
	if !rng.To.IsZero() {
		date["$lt"] = rng.To
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

func chronological() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}})
}
