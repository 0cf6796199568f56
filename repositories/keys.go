package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key layout. Message keys embed a zero-padded creation timestamp so a
// plain prefix scan yields chronological order; the trailing id breaks
// ties between messages created in the same nanosecond.
const (
	prefixUser     = "user:"
	prefixAccount  = "account:"
	prefixConv     = "conv:"
	prefixPair     = "pair:"
	prefixMember   = "member:"
	prefixMemberOf = "memberof:"
	prefixMessage  = "msg:"
	prefixMsgPtr   = "msgid:"
	prefixReaction = "react:"
	prefixRead     = "read:"
	prefixNotif    = "notif:"
)

func userKey(id uuid.UUID) []byte    { return []byte(prefixUser + id.String()) }
func accountKey(email string) []byte { return []byte(prefixAccount + strings.ToLower(email)) }
func convKey(id uuid.UUID) []byte    { return []byte(prefixConv + id.String()) }

// pairKey is order-independent: the lower uuid always comes first, so
// CreatePrivate(a,b) and CreatePrivate(b,a) hit the same key.
func pairKey(a, b uuid.UUID) []byte {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return []byte(prefixPair + lo + ":" + hi)
}

func memberKey(conv, user uuid.UUID) []byte {
	return []byte(prefixMember + conv.String() + ":" + user.String())
}
func memberPrefix(conv uuid.UUID) []byte { return []byte(prefixMember + conv.String() + ":") }

func memberOfKey(user, conv uuid.UUID) []byte {
	return []byte(prefixMemberOf + user.String() + ":" + conv.String())
}
func memberOfPrefix(user uuid.UUID) []byte { return []byte(prefixMemberOf + user.String() + ":") }

func messageKey(conv uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", prefixMessage, conv, at.UnixNano(), id))
}
func messagePrefix(conv uuid.UUID) []byte { return []byte(prefixMessage + conv.String() + ":") }

func messagePtrKey(id uuid.UUID) []byte { return []byte(prefixMsgPtr + id.String()) }

func reactionKey(msg, user uuid.UUID, emoji string) []byte {
	return []byte(prefixReaction + msg.String() + ":" + user.String() + ":" + emoji)
}
func reactionPrefix(msg uuid.UUID) []byte { return []byte(prefixReaction + msg.String() + ":") }

func readKey(conv, msg, user uuid.UUID) []byte {
	return []byte(prefixRead + conv.String() + ":" + msg.String() + ":" + user.String())
}
func readMsgPrefix(conv, msg uuid.UUID) []byte {
	return []byte(prefixRead + conv.String() + ":" + msg.String() + ":")
}
func readPrefix(conv uuid.UUID) []byte { return []byte(prefixRead + conv.String() + ":") }

func notifKey(user, conv uuid.UUID) []byte {
	return []byte(prefixNotif + user.String() + ":" + conv.String())
}
