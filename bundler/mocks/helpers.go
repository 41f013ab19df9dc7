package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockRelayForTest creates a MockRelay whose controller is finished on test cleanup.
func NewMockRelayForTest(t *testing.T) *MockRelay {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockRelay(ctrl)
}
