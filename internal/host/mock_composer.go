package host

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockComposer struct {
	mock.Mock
}

func (m *MockComposer) ComposePost(ctx context.Context, text string, embeds []string) (string, error) {
	args := m.Called(ctx, text, embeds)
	return args.String(0), args.Error(1)
}
