package query

import "time"

// Observer receives engine events. Implementations must be safe for
// concurrent use since one engine serves every cursor of a connection.
type Observer interface {
	Submitted()
	Polled(elapsed time.Duration, err error)
	PageReceived(p *Page)
}

type nopObserver struct{}

func (nopObserver) Submitted()                  {}
func (nopObserver) Polled(time.Duration, error) {}
func (nopObserver) PageReceived(*Page)          {}
