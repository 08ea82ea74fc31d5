package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/testutil"
)

type fakeCollection struct {
	docs []interface{}
	err  error
}

func (c *fakeCollection) InsertMany(_ context.Context, docs []interface{}, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.docs = append(c.docs, docs...)
	return &mongo.InsertManyResult{}, nil
}

func envelopeResult() *models.Result {
	r := models.NewResult("craigslist.com", nil)
	r.SearchEnvelopes = []models.Record{
		{"thor_id": "a", "id": int64(7781), "price": json.Number("9500"), "Images": []interface{}{"x.jpg"}},
		{"thor_id": "b", "id": int64(7782)},
	}
	r.DetailEnvelopes = []models.Record{{"thor_id": "c", "id": json.Number("7781")}}
	return r
}

func TestDocuments(t *testing.T) {
	docs, err := Documents(envelopeResult().SearchEnvelopes)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc := docs[0].(bson.M)
	assert.Equal(t, "a", doc["thor_id"])
	assert.EqualValues(t, 9500, doc["price"])
	assert.Equal(t, bson.A{"x.jpg"}, doc["Images"])
}

func TestWrite(t *testing.T) {
	search, detail := &fakeCollection{}, &fakeCollection{}
	store := newStore(search, detail, time.Second, nil)

	require.NoError(t, store.Write(context.Background(), envelopeResult()))
	assert.Len(t, search.docs, 2)
	assert.Len(t, detail.docs, 1)

	require.NoError(t, store.Write(context.Background(), models.NewResult("ksl.com", nil)))
	assert.Len(t, search.docs, 2, "empty results insert nothing")
	assert.NoError(t, store.Close())
}

func TestWriteFailure(t *testing.T) {
	search := &fakeCollection{err: fmt.Errorf("not primary")}
	store := newStore(search, &fakeCollection{}, 0, nil)
	assert.Error(t, store.Write(context.Background(), envelopeResult()))
}

func TestStoreIntegration(t *testing.T) {
	uri := testutil.RequireEnv(t, "THOR_MONGODB_URI")
	ctx := testutil.TestContext(t)
	db := fmt.Sprintf("thor_test_%d", time.Now().UnixNano())

	store, err := Open(ctx, Config{URI: uri, Database: db}, nil)
	require.NoError(t, err)
	defer func() {
		_ = store.client.Database(db).Drop(ctx)
		_ = store.Close()
	}()

	require.NoError(t, store.Write(ctx, envelopeResult()))
	n, err := store.client.Database(db).Collection(SearchCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
