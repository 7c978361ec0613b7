package _switch

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/webrtc-signal-relay/backend/model"
)

func newTestSwitch(maxPerAddr int) *Switch {
	logger := zerolog.Nop()
	return NewSwitch(Config{
		Logger:                   &logger,
		MaxConnectionsPerAddress: maxPerAddr,
	})
}

func TestSwitch_Admit(t *testing.T) {
	sw := newTestSwitch(2)

	assert.ErrorIs(t, sw.Admit(""), model.ErrUnknownOrigin)

	require.NoError(t, sw.Admit("10.0.0.1"))
	require.NoError(t, sw.Admit("10.0.0.1"))
	assert.ErrorIs(t, sw.Admit("10.0.0.1"), model.ErrTooManyConnections)
	assert.Equal(t, 2, sw.OpenFrom("10.0.0.1"))

	assert.NoError(t, sw.Admit("10.0.0.2"), "limit is per address")
}

func TestSwitch_UnregisterFreesExactlyOneSlot(t *testing.T) {
	sw := newTestSwitch(2)
	addr := "10.0.0.1"

	var ids []string
	for i := 0; i < 2; i++ {
		require.NoError(t, sw.Admit(addr))
		ids = append(ids, sw.Register(addr, model.NewWire(1), nil).ID)
	}
	require.ErrorIs(t, sw.Admit(addr), model.ErrTooManyConnections)

	conn, ok := sw.Unregister(ids[0])
	require.True(t, ok)
	assert.Equal(t, addr, conn.Addr)

	require.NoError(t, sw.Admit(addr))
	assert.ErrorIs(t, sw.Admit(addr), model.ErrTooManyConnections)
}

func TestSwitch_AddressEntryRemovedAtZero(t *testing.T) {
	sw := newTestSwitch(1)
	addr := "10.0.0.1"

	require.NoError(t, sw.Admit(addr))
	conn := sw.Register(addr, model.NewWire(1), nil)
	_, ok := sw.Unregister(conn.ID)
	require.True(t, ok)

	assert.Empty(t, sw.addrs)
	assert.Equal(t, 0, sw.Count())

	_, ok = sw.Unregister(conn.ID)
	assert.False(t, ok, "second unregister is a no-op")
}

func TestSwitch_RegisterAssignsUniqueIDs(t *testing.T) {
	sw := newTestSwitch(100)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		require.NoError(t, sw.Admit("10.0.0.1"))
		conn := sw.Register("10.0.0.1", model.NewWire(1), nil)
		require.NotEmpty(t, conn.ID)
		assert.Empty(t, conn.RoomID)
		seen[conn.ID] = struct{}{}
	}
	assert.Len(t, seen, 50)
	assert.Equal(t, 50, sw.Count())
}

func TestSwitch_SetRoom(t *testing.T) {
	sw := newTestSwitch(1)
	require.NoError(t, sw.Admit("10.0.0.1"))
	conn := sw.Register("10.0.0.1", model.NewWire(1), nil)

	sw.SetRoom(conn.ID, "room-1")
	got, ok := sw.Lookup(conn.ID)
	require.True(t, ok)
	assert.Equal(t, "room-1", got.RoomID)

	sw.SetRoom(conn.ID, "")
	assert.Empty(t, got.RoomID)

	sw.SetRoom("missing", "room-1")
	_, ok = sw.Lookup("missing")
	assert.False(t, ok)
}

func TestSwitch_Send(t *testing.T) {
	sw := newTestSwitch(1)
	require.NoError(t, sw.Admit("10.0.0.1"))
	wire := model.NewWire(1)
	conn := sw.Register("10.0.0.1", wire, nil)

	assert.True(t, sw.Send(conn.ID, []byte("first")))
	assert.False(t, sw.Send(conn.ID, []byte("second")), "full queue drops")
	assert.False(t, sw.Send("missing", []byte("third")), "unknown target drops")

	require.Len(t, wire.TX, 1)
	assert.Equal(t, []byte("first"), <-wire.TX)
}
