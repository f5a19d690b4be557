// Package clock answers "what day is it" in the configured civil zone. The
// embedded clockwork.Clock is what the store stamps UTC instants with.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DateLayout = "2006-01-02"

type Clock struct {
	clockwork.Clock
	loc *time.Location
}

func New(c clockwork.Clock, loc *time.Location) *Clock {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{Clock: c, loc: loc}
}

func (c *Clock) Location() *time.Location { return c.loc }

// Today is the zone-local calendar date, e.g. "2024-05-01".
func (c *Clock) Today() string {
	return c.Now().In(c.loc).Format(DateLayout)
}
