package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// Method names understood on the channel
const (
	MethodSubscribe      = "subscribe"
	MethodUnsubscribe    = "unsubscribe"
	MethodUnsubscribeAll = "unsubscribeAll"
	MethodPublish        = "publish"
	MethodList           = "list"
	MethodPing           = "ping"
	MethodDisconnect     = "disconnect"

	// MethodMessage is the server-to-client delivery notification
	MethodMessage = "message"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeInvalidTopic   = -32001
	CodeNotSubscribed  = -32002
)

// Request is a client call
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request with the same ID
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a Response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notification is a server-initiated message without an ID
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Message is the payload of a delivery notification
type Message struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Message   json.RawMessage `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// TopicParams are the params of subscribe and unsubscribe
type TopicParams struct {
	Topic string `json:"topic"`
}

// PublishParams are the params of publish
type PublishParams struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// PublishResult is returned to publishers
type PublishResult struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Deliveries int    `json:"deliveries"`
}

// Publisher routes an encoded frame to a topic's subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (int, error)
}

// PublishMessage wraps message in a delivery notification, frames it once and
// hands the frame to p. Every subscriber receives the same bytes.
func PublishMessage(ctx context.Context, p Publisher, topic string, message json.RawMessage) (PublishResult, error) {
	if len(message) == 0 {
		message = json.RawMessage("null")
	}
	msg := Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	body, err := json.Marshal(Notification{Method: MethodMessage, Params: msg})
	if err != nil {
		return PublishResult{}, err
	}
	frame, err := EncodeText(body)
	if err != nil {
		return PublishResult{}, err
	}

	n, err := p.Publish(ctx, topic, frame)
	if err != nil {
		return PublishResult{}, err
	}
	return PublishResult{ID: msg.ID, Topic: topic, Deliveries: n}, nil
}

func errorFor(err error) *RPCError {
	switch {
	case errors.Is(err, topicindex.ErrInvalidFilter), errors.Is(err, topicindex.ErrInvalidTopicName),
		errors.Is(err, ErrMalformedEscape), errors.Is(err, ErrUnexpectedChar):
		return &RPCError{Code: CodeInvalidTopic, Message: err.Error()}
	case errors.Is(err, topicindex.ErrNotSubscribed):
		return &RPCError{Code: CodeNotSubscribed, Message: err.Error()}
	default:
		return &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
}
