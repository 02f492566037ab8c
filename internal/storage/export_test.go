package storage

import "time"

// SetClock replaces the time source used for failure timestamps.
func (d *DB) SetClock(now func() time.Time) {
	d.now = now
}
