package domain

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User  *User
	Muted map[MediaKind]bool
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User) *Member {
	return &Member{User: user, Muted: make(map[MediaKind]bool, 2)}
}

func (m *Member) SetMuted(kind MediaKind, muted bool) {
	m.Muted[kind] = muted
}

func (m *Member) IsMuted(kind MediaKind) bool {
	return m.Muted[kind]
}
