// Package loadermock has testify mocks for the loader package interfaces.
package loadermock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/slok/preload/internal/model"
)

// MockLoader is a mock of loader.Loader.
type MockLoader struct {
	mock.Mock
}

// Load provides a mock function with given fields: ctx, asset.
func (_m *MockLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	ret := _m.Called(ctx, asset)

	if rf, ok := ret.Get(0).(func(context.Context, model.AssetDescriptor) model.LoadOutcome); ok {
		return rf(ctx, asset)
	}
	return ret.Get(0).(model.LoadOutcome)
}

// NewMockLoader creates a new MockLoader and registers the expectations assertion on test cleanup.
func NewMockLoader(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLoader {
	m := &MockLoader{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockFetcher is a mock of loader.Fetcher.
type MockFetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, source.
func (_m *MockFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	ret := _m.Called(ctx, source)

	if rf, ok := ret.Get(0).(func(context.Context, string) (io.ReadCloser, error)); ok {
		return rf(ctx, source)
	}

	var r0 io.ReadCloser
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(io.ReadCloser)
	}
	return r0, ret.Error(1)
}

// NewMockFetcher creates a new MockFetcher and registers the expectations assertion on test cleanup.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	m := &MockFetcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
