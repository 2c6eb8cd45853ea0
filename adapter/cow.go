package adapter

import (
	"github.com/weiihann/cmapbench/adapter/leftright"
	"github.com/weiihann/cmapbench/collection"
	"github.com/weiihann/cmapbench/hasher"
)

// leftrightTable publishes after every write, so a goroutine always reads
// its own writes while other readers may briefly see the previous snapshot.
type leftrightTable[K collection.Key] struct {
	m *leftright.Map[K, collection.Value]
}

func (t *leftrightTable[K]) Pin() collection.Handle[K] { return t }

func (t *leftrightTable[K]) Get(key K) bool {
	_, ok := t.m.Get(key)

	return ok
}

func (t *leftrightTable[K]) Insert(key K) bool {
	ok := t.m.Insert(key, 0)
	if ok {
		t.m.Refresh()
	}

	return ok
}

func (t *leftrightTable[K]) Remove(key K) bool {
	ok := t.m.Remove(key)
	if ok {
		t.m.Refresh()
	}

	return ok
}

func (t *leftrightTable[K]) Update(key K) bool {
	ok := t.m.Update(key, increment)
	if ok {
		t.m.Refresh()
	}

	return ok
}

func (t *leftrightTable[K]) value(key K) (collection.Value, bool) {
	return t.m.Get(key)
}

// LeftRight is the copy-on-write dual map. Writers are serialized; readers
// never block.
func LeftRight[K collection.Key]() collection.Adapter[K] {
	return collection.Adapter[K]{
		Name: "leftright",
		New: func(capacity int, _ hasher.Hasher) (collection.Collection[K], error) {
			if err := checkCapacity(capacity); err != nil {
				return nil, err
			}

			return &leftrightTable[K]{m: leftright.New[K, collection.Value](capacity)}, nil
		},
	}
}
