package geminiwebapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Named-conversation persistence. Each entry maps a user-chosen name to the
// continuation triple of the last applied turn. Saves merge into the store
// (Put per name inside one transaction); they never recreate the bucket, so
// repeated saves to distinct names accumulate.

var convBucket = []byte("conversations")

// SaveConversations writes the given conversations into the store at path,
// merging with whatever names are already present. The write is a single
// transaction: either every provided name lands or none does.
func SaveConversations(path string, convs map[string]ConversationMeta) error {
	if len(convs) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	return db.Update(func(tx *bolt.Tx) error {
		b, errCreate := tx.CreateBucketIfNotExists(convBucket)
		if errCreate != nil {
			return errCreate
		}
		for name, meta := range convs {
			enc, e := json.Marshal(meta)
			if e != nil {
				return e
			}
			if e = b.Put([]byte(name), enc); e != nil {
				return e
			}
		}
		return nil
	})
}

// LoadConversations reads every named conversation from the store.
func LoadConversations(path string) (map[string]ConversationMeta, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()
	out := map[string]ConversationMeta{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(convBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var meta ConversationMeta
			if len(v) > 0 {
				if e := json.Unmarshal(v, &meta); e != nil {
					// Skip malformed entries instead of failing the whole load.
					return nil
				}
			}
			out[string(k)] = meta
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadConversation restores a single named conversation. An unknown name is
// a typed NotFoundError, never a zero-valued conversation, so callers can
// tell "new" apart from "restore failed".
func LoadConversation(path, name string) (ConversationMeta, error) {
	convs, err := LoadConversations(path)
	if err != nil {
		return ConversationMeta{}, err
	}
	meta, ok := convs[name]
	if !ok {
		return ConversationMeta{}, &NotFoundError{Name: name}
	}
	return meta, nil
}

// DeleteConversation removes a named conversation from the store. Deleting
// an unknown name is a no-op.
func DeleteConversation(path, name string) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(convBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(name))
	})
}
