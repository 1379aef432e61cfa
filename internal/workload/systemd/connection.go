// Package systemd adapts systemd, reached over D-Bus, to the workload runtime
// interface. Layers become drop-in files next to the service unit.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/trly/nfops/internal/log"
)

// Connection wraps the systemd D-Bus operations the runtime needs.
type Connection interface {
	GetUnitProperties(ctx context.Context, unitName string) (map[string]interface{}, error)
	StartUnit(ctx context.Context, unitName, mode string) (chan string, error)
	StopUnit(ctx context.Context, unitName, mode string) (chan string, error)
	Reload(ctx context.Context) error
	Close() error
}

// ConnectionFactory creates Connection instances.
type ConnectionFactory interface {
	NewConnection(ctx context.Context, userMode bool) (Connection, error)
}

// DBusConnection implements Connection over a go-systemd D-Bus connection.
type DBusConnection struct {
	conn *dbus.Conn
}

// NewDBusConnection creates a new D-Bus connection wrapper.
func NewDBusConnection(conn *dbus.Conn) *DBusConnection {
	return &DBusConnection{conn: conn}
}

// GetUnitProperties gets all properties of a systemd unit.
func (d *DBusConnection) GetUnitProperties(ctx context.Context, unitName string) (map[string]interface{}, error) {
	props, err := d.conn.GetUnitPropertiesContext(ctx, unitName)
	if err != nil {
		return nil, fmt.Errorf("error getting unit properties for %s: %w", unitName, err)
	}
	return props, nil
}

// StartUnit enqueues a start job; the job result arrives on the channel.
func (d *DBusConnection) StartUnit(ctx context.Context, unitName, mode string) (chan string, error) {
	ch := make(chan string, 1)
	if _, err := d.conn.StartUnitContext(ctx, unitName, mode, ch); err != nil {
		return nil, fmt.Errorf("error starting unit %s: %w", unitName, err)
	}
	return ch, nil
}

// StopUnit enqueues a stop job; the job result arrives on the channel.
func (d *DBusConnection) StopUnit(ctx context.Context, unitName, mode string) (chan string, error) {
	ch := make(chan string, 1)
	if _, err := d.conn.StopUnitContext(ctx, unitName, mode, ch); err != nil {
		return nil, fmt.Errorf("error stopping unit %s: %w", unitName, err)
	}
	return ch, nil
}

// Reload reloads systemd configuration.
func (d *DBusConnection) Reload(ctx context.Context) error {
	if err := d.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("error reloading systemd: %w", err)
	}
	return nil
}

// Close closes the D-Bus connection.
func (d *DBusConnection) Close() error {
	d.conn.Close()
	return nil
}

// DefaultConnectionFactory connects to the system or user bus.
type DefaultConnectionFactory struct {
	logger log.Logger
}

// NewConnectionFactory creates a new connection factory with injected logger.
func NewConnectionFactory(logger log.Logger) *DefaultConnectionFactory {
	return &DefaultConnectionFactory{logger: logger}
}

// NewConnection connects to the user bus when userMode is set, else the
// system bus.
func (f *DefaultConnectionFactory) NewConnection(ctx context.Context, userMode bool) (Connection, error) {
	var conn *dbus.Conn
	var err error

	if userMode {
		f.logger.Debug("Establishing user connection to systemd")
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		f.logger.Debug("Establishing system connection to systemd")
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, NewConnectionError(userMode, err)
	}
	return NewDBusConnection(conn), nil
}

// ConnectionError represents an error connecting to systemd.
type ConnectionError struct {
	UserMode bool
	Cause    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	mode := "system"
	if e.UserMode {
		mode = "user"
	}
	return fmt.Sprintf("failed to connect to systemd %s bus: %v", mode, e.Cause)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(userMode bool, cause error) *ConnectionError {
	return &ConnectionError{UserMode: userMode, Cause: cause}
}
