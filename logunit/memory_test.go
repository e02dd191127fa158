package logunit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dahliamalkhi/corfu-go/address"
)

func streamOf(ids ...address.StreamID) map[address.StreamID]struct{} {
	var m = make(map[address.StreamID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestReadUnwrittenAddressIsEmpty(t *testing.T) {
	var u = NewMemoryUnit()
	var e, err = u.Read(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, Empty, e.Type)
}

func TestFillHoleThenReadIsPermanentHole(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()

	assert.NoError(t, u.FillHole(ctx, 5))

	var e, err = u.Read(ctx, 5)
	assert.NoError(t, err)
	assert.Equal(t, Hole, e.Type)

	// Idempotent: reading again yields the identical result.
	e2, err := u.Read(ctx, 5)
	assert.NoError(t, err)
	assert.Equal(t, e.Type, e2.Type)
}

func TestWriteIsIdempotentOnEqualPayload(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()
	var sid = address.StreamID{1}
	var streams = streamOf(sid)

	status, err := u.Write(ctx, 10, streams, nil, []byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, Ok, status)

	status, err = u.Write(ctx, 10, streams, nil, []byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, Ok, status, "identical re-write must be accepted as idempotent")
}

func TestWriteConflictIsOverwrite(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()
	var sid = address.StreamID{1}

	_, err := u.Write(ctx, 10, streamOf(sid), nil, []byte("hello"))
	assert.NoError(t, err)

	status, err := u.Write(ctx, 10, streamOf(sid), nil, []byte("goodbye"))
	assert.NoError(t, err)
	assert.Equal(t, Overwrite, status)
}

func TestTrimmedReadReturnsError(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()
	var sid = address.StreamID{2}

	_, err := u.Write(ctx, 1, streamOf(sid), nil, []byte("x"))
	assert.NoError(t, err)
	assert.NoError(t, u.Trim(ctx, sid, 1))

	_, err = u.Read(ctx, 1)
	assert.Equal(t, ErrTrimmed, err)
}

func TestReadAllPreservesInputOrder(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()
	var sid = address.StreamID{3}

	for _, a := range []address.GlobalAddress{5, 1, 9, 3} {
		_, err := u.Write(ctx, a, streamOf(sid), nil, []byte{byte(a)})
		assert.NoError(t, err)
	}

	var entries, err = u.ReadAll(ctx, []address.GlobalAddress{9, 1, 5, 3})
	assert.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, address.GlobalAddress(9), entries[0].Address)
	assert.Equal(t, address.GlobalAddress(1), entries[1].Address)
	assert.Equal(t, address.GlobalAddress(5), entries[2].Address)
	assert.Equal(t, address.GlobalAddress(3), entries[3].Address)
}

func TestHoleFillOnEmptyConverts(t *testing.T) {
	var u = NewMemoryUnit()
	var ctx = context.Background()

	var e, err = HoleFillOnEmpty(ctx, u, 8)
	assert.NoError(t, err)
	assert.Equal(t, Hole, e.Type)
}
