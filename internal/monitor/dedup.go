package monitor

// Cursor remembers the highest event id already processed.
// Source ids are non-decreasing but may repeat or skip, so anything at or
// below the cursor has been seen.
type Cursor struct {
	last        int64
	initialized bool
}

// Prime seeds the cursor with the largest id of a priming poll.
// Events that existed before startup are never reported.
func (c *Cursor) Prime(ids []int64) {
	var max int64
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	c.last = max
	c.initialized = true
}

// Fresh reports whether id has not been processed yet.
func (c *Cursor) Fresh(id int64) bool {
	return id > c.last
}

// Advance moves the cursor to id. It never moves backwards.
func (c *Cursor) Advance(id int64) {
	if id > c.last {
		c.last = id
	}
	c.initialized = true
}

// Last returns the current cursor position.
func (c Cursor) Last() int64 { return c.last }

// Initialized reports whether the cursor was primed or advanced.
func (c Cursor) Initialized() bool { return c.initialized }
