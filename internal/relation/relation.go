// Package relation implements the key-value transport between units. A
// channel links one provider unit to one consumer unit over a named endpoint;
// each side owns its own map, readable by both.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Side identifies which map of a channel is read or written.
type Side int

const (
	// SideProvider is the map written by the providing unit.
	SideProvider Side = iota
	// SideConsumer is the map written by the consuming unit.
	SideConsumer
)

// String returns the side name.
func (s Side) String() string {
	switch s {
	case SideProvider:
		return "provider"
	case SideConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide parses a side name.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "provider":
		return SideProvider, nil
	case "consumer":
		return SideConsumer, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// Channel is one provider -> consumer link over an endpoint.
type Channel struct {
	Endpoint string `json:"endpoint"`
	Provider string `json:"provider"`
	Consumer string `json:"consumer"`
}

// ID returns the stable channel identifier "<provider>:<endpoint>:<consumer>".
func (c Channel) ID() string {
	return c.Provider + ":" + c.Endpoint + ":" + c.Consumer
}

// Validate checks that every part of the channel is set.
func (c Channel) Validate() error {
	if c.Endpoint == "" || c.Provider == "" || c.Consumer == "" {
		return fmt.Errorf("channel %q: endpoint, provider and consumer are required", c.ID())
	}
	if strings.Contains(c.Endpoint+c.Provider+c.Consumer, ":") {
		return fmt.Errorf("channel %q: names must not contain ':'", c.ID())
	}
	if c.Provider == c.Consumer {
		return fmt.Errorf("channel %q: a unit cannot relate to itself", c.ID())
	}
	return nil
}

// ParseID parses a channel identifier produced by Channel.ID.
func ParseID(id string) (Channel, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return Channel{}, fmt.Errorf("invalid channel id %q: want provider:endpoint:consumer", id)
	}
	c := Channel{Provider: parts[0], Endpoint: parts[1], Consumer: parts[2]}
	return c, c.Validate()
}

// ErrChannelNotFound is returned when writing to a channel that is not joined.
var ErrChannelNotFound = errors.New("channel not found")

// Store is the relation key-value transport.
//
// Reading an absent channel yields an empty map, so "never joined" and
// "broken" look the same to readers.
type Store interface {
	Join(ctx context.Context, ch Channel) error
	Break(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Read(ctx context.Context, id string, side Side) (map[string]string, error)
	// Write merges data into one side of a joined channel.
	Write(ctx context.Context, id string, side Side, data map[string]string) error
	Channels(ctx context.Context) ([]Channel, error)
}

// Consumed returns the channel over which consumer receives endpoint.
func Consumed(ctx context.Context, s Store, endpoint, consumer string) (Channel, bool, error) {
	chs, err := s.Channels(ctx)
	if err != nil {
		return Channel{}, false, err
	}
	for _, ch := range chs {
		if ch.Endpoint == endpoint && ch.Consumer == consumer {
			return ch, true, nil
		}
	}
	return Channel{}, false, nil
}

// Provided returns every channel over which provider serves endpoint.
func Provided(ctx context.Context, s Store, endpoint, provider string) ([]Channel, error) {
	chs, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	var out []Channel
	for _, ch := range chs {
		if ch.Endpoint == endpoint && ch.Provider == provider {
			out = append(out, ch)
		}
	}
	return out, nil
}

func sortChannels(chs []Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].ID() < chs[j].ID() })
}
