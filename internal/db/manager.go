package db

import (
	"fmt"
	"log/slog"
	"time"

	"ohnitiel/upsql/dbapi"
	"ohnitiel/upsql/internal/config"
	"ohnitiel/upsql/query"
)

// ConnectFunc opens the connection of one profile.
type ConnectFunc func(p *config.Profile) (*dbapi.Connection, error)

// NewConnector opens profiles with the timeouts and discovery settings of
// conf. observers may be nil.
func NewConnector(conf *config.Config, observers func(profile string) query.Observer) ConnectFunc {
	return func(p *config.Profile) (*dbapi.Connection, error) {
		interval, err := conf.PollIntervalDuration()
		if err != nil {
			return nil, err
		}

		opts := []dbapi.Option{
			dbapi.WithTimeout(conf.ProfileTimeout(p)),
			dbapi.WithDiscovery(conf.ProfileDiscover(p)),
			dbapi.WithPollInterval(interval),
			dbapi.WithLogger(slog.Default().With("profile", p.Name)),
		}
		if observers != nil {
			opts = append(opts, dbapi.WithObserver(observers(p.Name)))
		}

		return dbapi.Connect(p.Token, p.APIURL, opts...)
	}
}

// Manager keeps one connection per selected profile.
type Manager struct {
	connections map[string]*Connection
	backoff     func(attempt int) time.Duration
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		backoff:     defaultBackoff,
	}
}

func (dm *Manager) GetConnection(name string) *Connection {
	return dm.connections[name]
}

func (dm *Manager) GetConnections() map[string]*Connection {
	return dm.connections
}

func (dm *Manager) Close() {
	for _, conn := range dm.connections {
		if conn.conn != nil {
			conn.conn.Close()
		}
	}
}

// LoadConnections opens the enabled profiles among names (all enabled
// profiles when names is empty). A profile that fails to open is kept with
// its error so callers can report it.
func (dm *Manager) LoadConnections(conf *config.Config, names []string, connect ConnectFunc) error {
	enabled, err := conf.EnabledProfiles(names)
	if err != nil {
		return err
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no enabled profiles")
	}

	for _, name := range enabled {
		conn, err := connect(conf.GetProfile(name))
		if err != nil {
			slog.Warn("Unable to open profile", "profile", name, "error", err)
			dm.connections[name] = &Connection{
				name: name,
				err:  fmt.Errorf("unable to connect to %s: %w", name, err),
			}
			continue
		}
		dm.connections[name] = &Connection{name: name, conn: conn, backoff: dm.backoff}
	}

	return nil
}
