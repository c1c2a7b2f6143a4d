package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmployeeTopic(t *testing.T) {
	assert.Equal(t, "housing/employees/42/tasks", EmployeeTopic("housing/", 42))
}

func TestEncodePayload(t *testing.T) {
	data, err := encodePayload("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	data, err = encodePayload(&PushMessage{Type: MsgTypeVisitAssigned, Timestamp: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"visit_assigned","timestamp":1}`, string(data))

	_, err = encodePayload(make(chan int))
	assert.Error(t, err)
}

func TestClient_PublishWithoutConnect(t *testing.T) {
	c := NewClient(&Config{Broker: "tcp://127.0.0.1:1"}, nil)
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Publish(context.Background(), "t", "x"))
}

func TestMemoryPublisher(t *testing.T) {
	p := &MemoryPublisher{}
	msg := NewPushMessage(MsgTypeVisitAssigned, map[string]int64{"visit_id": 1})
	require.NoError(t, p.Publish(context.Background(), "housing/employees/1/tasks", msg))
	require.Len(t, p.Messages(), 1)
	assert.Equal(t, msg, p.Messages()[0].Payload)

	p.Err = errors.New("offline")
	assert.Error(t, p.Publish(context.Background(), "x", nil))
	assert.Len(t, p.Messages(), 1)
}
