package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testModel struct {
	id string
}

func (m *testModel) GetID() string {
	return m.id
}

func TestCollection(t *testing.T) {
	collection := NewCollection[*testModel]()
	require.NotNil(t, collection)

	collection.Store(&testModel{id: "a"})

	item, ok := collection.Load("a")
	require.True(t, ok)
	require.NotNil(t, item)

	collection.Delete("a")

	item, ok = collection.Load("a")
	require.False(t, ok)
	require.Nil(t, item)
}

func TestCollectionRange(t *testing.T) {
	collection := NewCollection[*testModel]()
	collection.Store(&testModel{id: "a"})
	collection.Store(&testModel{id: "b"})

	count := 0
	collection.Range(func(item *testModel) bool {
		count++
		return true
	})
	require.Equal(t, 2, count)
	require.Equal(t, 2, collection.Len())
}
