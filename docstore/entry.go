package docstore

import (
	"github.com/pkg/errors"
)

// position of a value blob inside the database file
type position struct {
	offset uint64
	size   uint64
}

type entry struct {
	collection string
	key        string
	// value is nil when the entry was loaded lazily,
	// it is then read from the file by its position
	value []byte
	pos   position
}

func newEntry(collection, key string, value []byte) *entry {
	return &entry{collection: collection, key: key, value: value}
}

func byKeys(a, b interface{}) bool {
	i1, i2 := a.(*entry), b.(*entry)
	return i1.key < i2.key
}

type serializable interface {
	serialize(rs *respSerializer)
}

type deserializable interface {
	deserialize(e *engine) error
}

type setCmd struct {
	ent *entry
}

func (cmd *setCmd) serialize(rs *respSerializer) {
	rs.serializeSetCommand(cmd.ent, cmd.ent.value)
}

func (cmd *setCmd) deserialize(e *engine) error {
	if prev := e.putUnderLock(cmd.ent); prev != nil {
		e.garbage++
	}
	return nil
}

type deleteCmd struct {
	collection string
	key        string
}

func (cmd *deleteCmd) serialize(rs *respSerializer) {
	rs.serializeDelCommand(cmd.collection, cmd.key)
}

func (cmd *deleteCmd) deserialize(e *engine) error {
	if _, err := e.removeUnderLock(cmd.collection, cmd.key); err != nil {
		return errors.Wrapf(err, "could not deserialize delete key %s command", cmd.key)
	}

	e.garbage += 2

	return nil
}
