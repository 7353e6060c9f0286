// Package mongo implements store.Store on MongoDB using the official
// mongo-driver/v2. Lock operations are single-document UpdateOne calls
// whose filters carry the claim conditions, so the server applies each
// claim atomically.
//
// The caller owns the *mongo.Client lifecycle; this package never
// disconnects it. Pass a database handle through the constructor:
//
//	import (
//	    mongod "go.mongodb.org/mongo-driver/v2/mongo"
//	    "go.mongodb.org/mongo-driver/v2/mongo/options"
//	    "github.com/xraph/claim/store/mongo"
//	)
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	store := mongo.New(client.Database("claim"))
//	store.Migrate(ctx)
package mongo
