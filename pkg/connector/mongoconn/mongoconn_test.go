package mongoconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/portage-data/portage/pkg/value"
)

func TestCollectionFromURIPrefersFragment(t *testing.T) {
	u, collection, err := collectionFromURI("mongodb://host/mydb#events", nil)
	require.NoError(t, err)
	assert.Equal(t, "events", collection)
	assert.Equal(t, "mydb", databaseName(u))
}

func TestCollectionFromURIFallsBackToOption(t *testing.T) {
	_, collection, err := collectionFromURI("mongodb://host/mydb", map[string]string{"collection": "logs"})
	require.NoError(t, err)
	assert.Equal(t, "logs", collection)
}

func TestCollectionFromURIErrorsWithoutCollectionOrOption(t *testing.T) {
	_, _, err := collectionFromURI("mongodb://host/mydb", nil)
	assert.Error(t, err)
}

func TestValueFromBSONHandlesNestedDocumentsAndArrays(t *testing.T) {
	doc := bson.M{
		"name": "alice",
		"tags": bson.A{"a", "b"},
		"meta": bson.M{"active": true},
	}
	row := rowFromDocument(doc)

	byName := map[string]value.Value{}
	for _, f := range row.Fields {
		byName[f.Name] = f.Value
	}

	s, _ := byName["name"].AsString()
	assert.Equal(t, "alice", s)

	arr, ok := byName["tags"].AsArray()
	require.True(t, ok)
	assert.Len(t, arr, 2)

	m, ok := byName["meta"].AsMap()
	require.True(t, ok)
	active, _ := m["active"].AsBoolean()
	assert.True(t, active)
}

func TestBSONFromValueRoundTripsArraysAndMaps(t *testing.T) {
	v := value.Array([]value.Value{value.Integer(1), value.String("x")})
	out := bsonFromValue(v)
	arr, ok := out.(bson.A)
	require.True(t, ok)
	assert.Len(t, arr, 2)
}
