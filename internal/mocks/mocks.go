// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
	"github.com/xkilldash9x/codebuddy-cli/internal/service"
)

// -- Component Factory Mock --

// MockComponentFactory mocks service.ComponentFactory.
type MockComponentFactory struct {
	mock.Mock
}

func (m *MockComponentFactory) Create(ctx context.Context, cfg *config.Config, mode service.Mode, logger *zap.Logger) (*service.Components, error) {
	args := m.Called(ctx, cfg, mode, logger)
	components, _ := args.Get(0).(*service.Components)
	return components, args.Error(1)
}

var _ service.ComponentFactory = (*MockComponentFactory)(nil)
