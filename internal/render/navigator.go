package render

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-client/internal/store"
)

// Badge is the navigator state of one question.
type Badge string

const (
	BadgeNone     Badge = ""
	BadgeCurrent  Badge = "current"
	BadgeUploaded Badge = "uploaded"
	BadgeAnswered Badge = "answered"
	BadgeVisited  Badge = "visited"
)

// BadgeFor picks the highest-priority badge: current, uploaded, answered, visited.
func BadgeFor(snap store.Snapshot, i int) Badge {
	switch {
	case i == snap.CurrentIndex:
		return BadgeCurrent
	case snap.IsUploaded(i):
		return BadgeUploaded
	case snap.IsAnswered(i):
		return BadgeAnswered
	case snap.IsVisited(i):
		return BadgeVisited
	default:
		return BadgeNone
	}
}

var badgeMarks = map[Badge]string{
	BadgeCurrent:  ">",
	BadgeUploaded: "^",
	BadgeAnswered: "*",
	BadgeVisited:  ".",
	BadgeNone:     " ",
}

// Navigator renders one cell per question, e.g. "[>1][*2][ 3]".
func Navigator(snap store.Snapshot) string {
	var b strings.Builder
	for i := range snap.Questions {
		fmt.Fprintf(&b, "[%s%d]", badgeMarks[BadgeFor(snap, i)], i+1)
	}
	return b.String()
}

// NavigatorLegend explains the navigator marks.
const NavigatorLegend = "> current  ^ uploaded  * answered  . visited"
