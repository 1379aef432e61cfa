package pebble

import (
	"context"
	"fmt"

	"github.com/canonical/pebble/client"
)

type MockClient struct {
	AddLayerFunc   func(opts *client.AddLayerOptions) error
	StartFunc      func(opts *client.ServiceOptions) (string, error)
	StopFunc       func(opts *client.ServiceOptions) (string, error)
	WaitChangeFunc func(id string, opts *client.WaitChangeOptions) (*client.Change, error)
	ServicesFunc   func(opts *client.ServicesOptions) ([]*client.ServiceInfo, error)
	FollowLogsFunc func(ctx context.Context, opts *client.LogsOptions) error
	LogsFunc       func(opts *client.LogsOptions) error
	PushFunc       func(opts *client.PushOptions) error
}

func (m *MockClient) AddLayer(opts *client.AddLayerOptions) error {
	if m.AddLayerFunc != nil {
		return m.AddLayerFunc(opts)
	}
	return fmt.Errorf("mock not implemented")
}

func (m *MockClient) Start(opts *client.ServiceOptions) (string, error) {
	if m.StartFunc != nil {
		return m.StartFunc(opts)
	}
	return "", fmt.Errorf("mock not implemented")
}

func (m *MockClient) Stop(opts *client.ServiceOptions) (string, error) {
	if m.StopFunc != nil {
		return m.StopFunc(opts)
	}
	return "", fmt.Errorf("mock not implemented")
}

func (m *MockClient) WaitChange(id string, opts *client.WaitChangeOptions) (*client.Change, error) {
	if m.WaitChangeFunc != nil {
		return m.WaitChangeFunc(id, opts)
	}
	return &client.Change{ID: id, Ready: true}, nil
}

func (m *MockClient) Services(opts *client.ServicesOptions) ([]*client.ServiceInfo, error) {
	if m.ServicesFunc != nil {
		return m.ServicesFunc(opts)
	}
	return nil, fmt.Errorf("mock not implemented")
}

func (m *MockClient) FollowLogs(ctx context.Context, opts *client.LogsOptions) error {
	if m.FollowLogsFunc != nil {
		return m.FollowLogsFunc(ctx, opts)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockClient) Logs(opts *client.LogsOptions) error {
	if m.LogsFunc != nil {
		return m.LogsFunc(opts)
	}
	return nil
}

func (m *MockClient) Push(opts *client.PushOptions) error {
	if m.PushFunc != nil {
		return m.PushFunc(opts)
	}
	return fmt.Errorf("mock not implemented")
}
