package notify

import (
	"github.com/stretchr/testify/mock"

	"github.com/edulink/classchat/internal/types"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewMessage(tenantId, roomId string, sender types.Sender, preview string, recipients []string) {
	m.Called(tenantId, roomId, sender, preview, recipients)
}

func (m *MockNotifier) NotifyMention(tenantId, roomId string, sender types.Sender, preview string, mentioned []string) {
	m.Called(tenantId, roomId, sender, preview, mentioned)
}
