package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
)

var ErrNoSuchMember = errors.New("no such member")

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.UserID]SessionID
	order  map[SessionID]int
	seq    int
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.UserID]SessionID),
		order:  make(map[SessionID]int),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Member(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	return ms, ok
}

func (r *roomImpl) SessionOf(uid domain.UserID) (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[uid]
	return sid, ok
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) {
	u := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	r.byUser[u] = sid
	r.seq++
	r.order[sid] = r.seq
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms, ok := r.bySID[sid]; ok {
		u := ms.Meta().User.ID
		delete(r.byUser, u)
	}
	delete(r.bySID, sid)
	delete(r.order, sid)
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(uid domain.UserID, data Frame) error {
	r.mu.RLock()
	sid, ok := r.byUser[uid]
	var ms MemberSession
	if ok {
		ms = r.bySID[sid]
	}
	r.mu.RUnlock()
	if ms == nil || ms.Signal() == nil {
		return ErrNoSuchMember
	}
	return ms.Signal().TrySend(data)
}

// MembersSnapshot lists members in join order.
func (r *roomImpl) MembersSnapshot() []protocol.MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sids := make([]SessionID, 0, len(r.bySID))
	for sid := range r.bySID {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return r.order[sids[i]] < r.order[sids[j]] })

	out := make([]protocol.MemberDTO, 0, len(sids))
	for _, sid := range sids {
		u := r.bySID[sid].Meta().User
		out = append(out, protocol.MemberDTO{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return out
}
