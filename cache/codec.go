package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values on their way to and from the backing store.
// Values held in memory tiers are never serialized.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// MsgpackCodec is the default Codec.
type MsgpackCodec struct{}

var _ Codec = MsgpackCodec{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Unmarshal(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// record is the form a value takes in the backing store.
type record struct {
	Value      []byte `msgpack:"v"`
	StoredAt   int64  `msgpack:"s"`
	TTLSeconds int64  `msgpack:"t"`
}

func (r record) expiresAt() time.Time {
	return time.UnixMilli(r.StoredAt).Add(time.Duration(r.TTLSeconds) * time.Second)
}

// ttlSeconds rounds a positive ttl up to whole seconds, the granularity of
// the backing store.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 1
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

func encodeRecord(codec Codec, value any, now time.Time, ttl time.Duration) (string, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return "", codecErr(err, "marshal value of type %T", value)
	}
	buf, err := msgpack.Marshal(record{Value: data, StoredAt: now.UnixMilli(), TTLSeconds: ttlSeconds(ttl)})
	if err != nil {
		return "", codecErr(err, "marshal record")
	}
	return string(buf), nil
}

func decodeRecord(codec Codec, raw string) (any, record, error) {
	var rec record
	if err := msgpack.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, rec, codecErr(err, "unmarshal record")
	}
	v, err := codec.Unmarshal(rec.Value)
	if err != nil {
		return nil, rec, codecErr(err, "unmarshal value")
	}
	return v, rec, nil
}
