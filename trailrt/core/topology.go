package core

// Tag is a particle's position in its chain.
//
// The zero value is TagForceKill so a slot that was never linked is purged
// by the next kill pass instead of being rendered.
type Tag uint8

const (
	TagForceKill Tag = iota
	TagOnly
	TagStart
	TagMiddle
	TagEnd
	// TagDeadTrail replaces the head tag of a chain whose source is gone.
	// Nothing is inserted in front of it anymore.
	TagDeadTrail
)

func (t Tag) String() string {
	switch t {
	case TagForceKill:
		return "forcekill"
	case TagOnly:
		return "only"
	case TagStart:
		return "start"
	case TagMiddle:
		return "middle"
	case TagEnd:
		return "end"
	case TagDeadTrail:
		return "deadtrail"
	}
	return "invalid"
}

// NullIndex terminates a chain in either direction.
const NullIndex int32 = -1

// Links is the topology part of a chain payload.
// Next points toward the tail (older particles), Prev toward the head (newer).
type Links struct {
	Tag  Tag
	Next int32
	Prev int32
}

func NewLinks(tag Tag) Links {
	return Links{Tag: tag, Next: NullIndex, Prev: NullIndex}
}

func (l *Links) IsOnly() bool      { return l.Tag == TagOnly }
func (l *Links) IsStart() bool     { return l.Tag == TagStart }
func (l *Links) IsMiddle() bool    { return l.Tag == TagMiddle }
func (l *Links) IsEnd() bool       { return l.Tag == TagEnd }
func (l *Links) IsDeadTrail() bool { return l.Tag == TagDeadTrail }
func (l *Links) IsForceKill() bool { return l.Tag == TagForceKill }

// IsHead reports whether the particle is the newest of its chain.
func (l *Links) IsHead() bool {
	return l.Tag == TagOnly || l.Tag == TagStart || l.Tag == TagDeadTrail
}

// IsLiveHead is IsHead without dead trails: the particle new ones attach to.
func (l *Links) IsLiveHead() bool {
	return l.Tag == TagOnly || l.Tag == TagStart
}

// IsTail reports whether the particle is the oldest of its chain.
func (l *Links) IsTail() bool {
	switch l.Tag {
	case TagOnly, TagEnd:
		return true
	case TagDeadTrail:
		return l.Next == NullIndex
	}
	return false
}

func (l *Links) HasNext() bool { return l.Next != NullIndex }
func (l *Links) HasPrev() bool { return l.Prev != NullIndex }

func (l *Links) SetTag(t Tag)       { l.Tag = t }
func (l *Links) SetNext(next int32) { l.Next = next }
func (l *Links) SetPrev(prev int32) { l.Prev = prev }
