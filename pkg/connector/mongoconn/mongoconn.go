// Package mongoconn implements the MongoDB document connector,
// registered directly on the protocol "mongodb" and "mongodb+srv"
// schemes since collections have no file extension for the format
// registry to dispatch on. Nested BSON documents and arrays map onto
// value.Value's Map and Array variants; the collection name comes from
// the endpoint URI's fragment, mirroring the table-name convention
// used by the SQL connectors.
package mongoconn

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/protocol"
	"github.com/portage-data/portage/pkg/value"
)

func init() {
	protocol.RegisterSource("mongodb", newSource)
	protocol.RegisterTarget("mongodb", newTarget)
	protocol.RegisterSource("mongodb+srv", newSource)
	protocol.RegisterTarget("mongodb+srv", newTarget)
}

func collectionFromURI(uri string, options map[string]string) (*url.URL, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed MongoDB URI")
	}
	collection := u.Fragment
	if collection == "" {
		collection = options["collection"]
	}
	if collection == "" {
		return nil, "", pgerrors.New(pgerrors.KindConfiguration,
			"MongoDB URI has no collection fragment and no collection option").WithDetail("uri", uri)
	}
	return u, collection, nil
}

func connect(ctx context.Context, u *url.URL) (*mongo.Client, error) {
	clientURI := strings.SplitN(u.String(), "#", 2)[0]
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(clientURI))
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reach MongoDB server")
	}
	return client, nil
}

func databaseName(u *url.URL) string {
	return strings.Trim(u.Path, "/")
}

// Source reads every document in a collection; the inferred schema
// treats the union of keys across a sample as the column set, since
// MongoDB collections have no declared schema.
type Source struct {
	client     *mongo.Client
	collection *mongo.Collection
	schema     *pgschema.Schema
}

func newSource(ctx context.Context, uri string, opts map[string]string) (connector.Source, error) {
	u, collection, err := collectionFromURI(uri, opts)
	if err != nil {
		return nil, err
	}
	client, err := connect(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Source{client: client, collection: client.Database(databaseName(u)).Collection(collection)}, nil
}

func (s *Source) Discover(ctx context.Context) (*pgschema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	cur, err := s.collection.Find(ctx, bson.M{}, options.Find().SetLimit(int64(pgschema.DefaultSampleSize)))
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to sample MongoDB collection")
	}
	defer cur.Close(ctx)

	sample := make([]pgschema.Row, 0, pgschema.DefaultSampleSize)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed to decode sample MongoDB document")
		}
		sample = append(sample, rowFromDocument(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindSchemaInference, "failed while sampling MongoDB collection")
	}
	if len(sample) == 0 {
		return nil, pgerrors.New(pgerrors.KindSchemaInference, "MongoDB collection has no documents to sample").
			WithDetail("collection", s.collection.Name())
	}

	schema, err := pgschema.Infer(s.collection.Name(), sample)
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s.schema, nil
}

func rowFromDocument(doc bson.M) pgschema.Row {
	row := pgschema.Row{Fields: make([]pgschema.Field, 0, len(doc))}
	for k, v := range doc {
		row.Fields = append(row.Fields, pgschema.Field{Name: k, Value: valueFromBSON(v)})
	}
	return row
}

func valueFromBSON(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Boolean(t)
	case int32:
		return value.Integer(int64(t))
	case int64:
		return value.Integer(t)
	case float64:
		return value.Decimal(decimal.NewFromFloat(t))
	case string:
		return value.String(t)
	case primitive.DateTime:
		return value.DateTime(t.Time())
	case primitive.ObjectID:
		return value.String(t.Hex())
	case bson.M:
		m := make(map[string]value.Value, len(t))
		for k, inner := range t {
			m[k] = valueFromBSON(inner)
		}
		return value.Map(m)
	case bson.A:
		arr := make([]value.Value, len(t))
		for i, inner := range t {
			arr[i] = valueFromBSON(inner)
		}
		return value.Array(arr)
	default:
		return value.Null()
	}
}

func (s *Source) Read(ctx context.Context) (*connector.RowStream, error) {
	cur, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to query MongoDB collection")
	}

	rows := make(chan pgschema.Row, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed to decode MongoDB document")
				return
			}
			select {
			case rows <- rowFromDocument(doc):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := cur.Err(); err != nil {
			errs <- pgerrors.Wrap(err, pgerrors.KindConnection, "failed while reading MongoDB collection")
		}
	}()

	return &connector.RowStream{Rows: rows, Errors: errs}, nil
}

func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Target writes rows as documents into a collection.
type Target struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func newTarget(ctx context.Context, uri string, opts map[string]string) (connector.Target, error) {
	u, collection, err := collectionFromURI(uri, opts)
	if err != nil {
		return nil, err
	}
	client, err := connect(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Target{client: client, collection: client.Database(databaseName(u)).Collection(collection)}, nil
}

func (t *Target) SupportsTruncate() bool { return true }

func (t *Target) Prepare(ctx context.Context, schema *pgschema.Schema, mode connector.WriteMode) error {
	if mode == connector.ModeTruncate {
		if _, err := t.collection.DeleteMany(ctx, bson.M{}); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to truncate MongoDB collection").
				WithDetail("collection", t.collection.Name())
		}
	}
	return nil
}

func (t *Target) WriteBatch(ctx context.Context, rows []pgschema.Row) error {
	docs := make([]interface{}, len(rows))
	for i, row := range rows {
		doc := bson.M{}
		for _, f := range row.Fields {
			doc[f.Name] = bsonFromValue(f.Value)
		}
		docs[i] = doc
	}
	if _, err := t.collection.InsertMany(ctx, docs); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to insert MongoDB documents").
			WithDetail("collection", t.collection.Name())
	}
	return nil
}

func bsonFromValue(v value.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.DataType() {
	case value.TypeInteger:
		i, _ := v.AsInteger()
		return i
	case value.TypeBoolean:
		b, _ := v.AsBoolean()
		return b
	case value.TypeDateTime:
		t, _ := v.AsDateTime()
		return primitive.NewDateTimeFromTime(t)
	case value.TypeArray:
		arr, _ := v.AsArray()
		out := make(bson.A, len(arr))
		for i, inner := range arr {
			out[i] = bsonFromValue(inner)
		}
		return out
	case value.TypeMap:
		m, _ := v.AsMap()
		out := bson.M{}
		for k, inner := range m {
			out[k] = bsonFromValue(inner)
		}
		return out
	default:
		return value.ToCanonicalString(v)
	}
}

func (t *Target) Close(ctx context.Context) error {
	return t.client.Disconnect(ctx)
}
