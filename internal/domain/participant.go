package domain

// ParticipantID is the opaque identity the transport assigns to a conference member.
type ParticipantID string

// LocalParticipant is the sentinel transports use for "whoever I am".
const LocalParticipant ParticipantID = "local"

// IsLocalAlias reports whether id must be replaced by the local identity before dispatch.
func (id ParticipantID) IsLocalAlias() bool {
	return id == "" || id == LocalParticipant
}

// Resolve returns local when id is a local alias, id otherwise.
func (id ParticipantID) Resolve(local ParticipantID) ParticipantID {
	if id.IsLocalAlias() {
		return local
	}
	return id
}

func (id ParticipantID) String() string { return string(id) }
