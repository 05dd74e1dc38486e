package app

import (
	"sort"
	"sync"

	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
)

type RoomManagerImpl struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomName]core.RoomService
	metrics *metrics.Server
}

func NewRoomManager(m *metrics.Server) core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.RoomName]core.RoomService), metrics: m}
}

func (f *RoomManagerImpl) GetOrCreate(name domain.RoomName) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[name]; ok {
		return room
	}
	room = core.NewRoomService(domain.NewRoom(name))
	f.rooms[name] = room
	f.metrics.RoomOpened()
	return room
}

func (f *RoomManagerImpl) Get(name domain.RoomName) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for name, r := range f.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *RoomManagerImpl) StopRoom(name domain.RoomName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[name]; ok {
		delete(f.rooms, name)
		f.metrics.RoomClosed()
	}
}
