package memory

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/adwski/webrtc-signal-relay/backend/model"
)

const (
	defaultMaxCodeAttempts = 100
)

var (
	ErrRoomAlreadyExists  = errors.New("room already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotAMember         = errors.New("not a member of this room")
	ErrCodeSpaceExhausted = errors.New("unable to allocate room code")
)

type CodeGenerator interface {
	Generate() string
}

// MemStore keeps rooms and the bidirectional code <-> room id mapping.
// A room exists only while it has members.
type MemStore struct {
	mx     *sync.Mutex
	codes  CodeGenerator
	rooms  map[string]*model.Room // by id
	byCode map[string]string      // code -> id
}

func NewMemStore(codes CodeGenerator) *MemStore {
	return &MemStore{
		mx:     &sync.Mutex{},
		codes:  codes,
		rooms:  make(map[string]*model.Room),
		byCode: make(map[string]string),
	}
}

// CreateRoom creates a room with the given code and its founder as the
// only member.
func (ms *MemStore) CreateRoom(code, founderID string) (model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.byCode[code]; ok {
		return model.Room{}, ErrRoomAlreadyExists
	}
	room := ms.create(uuid.NewString(), code)
	room.Members = append(room.Members, founderID)
	return room.Clone(), nil
}

// JoinRoom appends joinerID to the room with the given code.
func (ms *MemStore) JoinRoom(code, joinerID string) (model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	id, ok := ms.byCode[code]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	room := ms.rooms[id]
	ms.join(room, joinerID)
	return room.Clone(), nil
}

// JoinOrCreateRoom appends joinerID to the room with the given id,
// creating it with a fresh unique code when it does not exist. The id is
// taken as supplied by the client.
func (ms *MemStore) JoinOrCreateRoom(roomID, joinerID string) (model.Room, bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[roomID]
	created := !ok
	if created {
		code, err := ms.uniqueCode()
		if err != nil {
			return model.Room{}, false, err
		}
		room = ms.create(roomID, code)
	}
	ms.join(room, joinerID)
	return room.Clone(), created, nil
}

// LeaveRoom removes memberID from the room. The returned bool is true when
// the room was deleted because it became empty.
func (ms *MemStore) LeaveRoom(roomID, memberID string) (model.Room, bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[roomID]
	if !ok {
		return model.Room{}, false, ErrRoomNotFound
	}
	if !ms.remove(room, memberID) {
		return model.Room{}, false, ErrNotAMember
	}
	return room.Clone(), ms.deleteIfEmpty(room), nil
}

// RemoveMember removes memberID from every room it belongs to and returns
// the rooms that changed but still have members.
func (ms *MemStore) RemoveMember(memberID string) []model.Room {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	var changed []model.Room
	for _, room := range ms.rooms {
		if !ms.remove(room, memberID) {
			continue
		}
		if !ms.deleteIfEmpty(room) {
			changed = append(changed, room.Clone())
		}
	}
	return changed
}

func (ms *MemStore) GetRoom(roomID string) (model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.rooms[roomID]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (ms *MemStore) RoomIDByCode(code string) (string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	id, ok := ms.byCode[code]
	return id, ok
}

// Stats returns the number of rooms and the total number of members.
func (ms *MemStore) Stats() (rooms, members int) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for _, room := range ms.rooms {
		members += len(room.Members)
	}
	return len(ms.rooms), members
}

func (ms *MemStore) create(id, code string) *model.Room {
	room := &model.Room{
		ID:      id,
		Code:    code,
		Members: make([]string, 0, 2),
	}
	ms.rooms[id] = room
	ms.byCode[code] = id
	return room
}

func (ms *MemStore) join(room *model.Room, memberID string) {
	if !slices.Contains(room.Members, memberID) {
		room.Members = append(room.Members, memberID)
	}
}

func (ms *MemStore) remove(room *model.Room, memberID string) bool {
	idx := slices.Index(room.Members, memberID)
	if idx < 0 {
		return false
	}
	room.Members = slices.Delete(room.Members, idx, idx+1)
	return true
}

func (ms *MemStore) deleteIfEmpty(room *model.Room) bool {
	if len(room.Members) > 0 {
		return false
	}
	delete(ms.rooms, room.ID)
	if ms.byCode[room.Code] == room.ID {
		delete(ms.byCode, room.Code)
	}
	return true
}

func (ms *MemStore) uniqueCode() (string, error) {
	for i := 0; i < defaultMaxCodeAttempts; i++ {
		code := ms.codes.Generate()
		if _, ok := ms.byCode[code]; !ok {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
