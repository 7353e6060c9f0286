package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/claim"
	"github.com/xraph/claim/id"
	"github.com/xraph/claim/transaction"
)

// InsertTransaction persists a new transaction.
func (s *Store) InsertTransaction(ctx context.Context, t *transaction.Transaction) error {
	if _, err := s.db.Collection(colTransactions).InsertOne(ctx, toTransactionModel(t)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return claim.ErrTransactionAlreadyExists
		}
		return wrap("insert transaction", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.db.Collection(colTransactions).FindOne(ctx, bson.M{"_id": txnID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, claim.ErrTransactionNotFound
		}
		return nil, wrap("get transaction", err)
	}
	return fromTransactionModel(&m)
}

// ListTransactions returns transactions with the given status, newest
// first unless opts.Oldest is set.
func (s *Store) ListTransactions(ctx context.Context, status transaction.Status, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	dir := -1
	if opts.Oldest {
		dir = 1
	}
	sort := bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}
	return s.findTransactions(ctx, "list transactions", statusFilter(string(status)), findOptions(sort, opts.Offset, opts.Limit))
}

// ListLockedTransactions returns every transaction with a recorded lock
// holder, oldest lock first.
func (s *Store) ListLockedTransactions(ctx context.Context) ([]*transaction.Transaction, error) {
	filter := bson.M{"locked_at": bson.M{"$ne": nil}}
	sort := bson.D{{Key: "locked_at", Value: 1}}
	return s.findTransactions(ctx, "list locked transactions", filter, findOptions(sort, 0, 0))
}

// CountTransactions returns the number of transactions with the given
// status.
func (s *Store) CountTransactions(ctx context.Context, status transaction.Status) (int64, error) {
	n, err := s.db.Collection(colTransactions).CountDocuments(ctx, statusFilter(string(status)))
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return n, nil
}

// TransitionTransaction applies tr as one filtered UpdateOne guarded by
// the lock holder and the expected source status.
func (s *Store) TransitionTransaction(ctx context.Context, tr transaction.Transition) (bool, error) {
	at := tr.At.UTC()
	set := bson.M{"status": string(tr.To), "updated_at": at}
	update := bson.M{"$set": set}
	switch tr.To {
	case transaction.StatusCompleted:
		set["processed_at"] = at
	case transaction.StatusFailed:
		set["failed_at"] = at
		set["error_message"] = tr.ErrorMessage
	}
	if tr.To.ClearsLock() {
		update["$unset"] = unlock
	}

	res, err := s.db.Collection(colTransactions).UpdateOne(ctx,
		bson.M{"_id": tr.TransactionID.String(), "locked_by": tr.WorkerID, "status": string(tr.From)},
		update,
	)
	if err != nil {
		return false, wrap("transition transaction", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, colTransactions, tr.TransactionID.String())
	if err != nil {
		return false, err
	}
	if !exists {
		return false, claim.ErrTransactionNotFound
	}
	return false, nil
}

func (s *Store) findTransactions(ctx context.Context, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]*transaction.Transaction, error) {
	cursor, err := s.db.Collection(colTransactions).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(op, err)
	}

	var models []transactionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrap(op, err)
	}

	txns := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, convErr := fromTransactionModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		txns = append(txns, t)
	}
	return txns, nil
}
