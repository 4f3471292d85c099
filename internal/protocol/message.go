package protocol

// Subprotocol is the WebSocket sub-protocol every accepted connection must negotiate.
const Subprotocol = "graphql-subscriptions"

// MessageType identifies the kind of a protocol message
type MessageType string

const (
	MessageTypeConnectionInit  MessageType = "connection_init"
	MessageTypeConnectionAck   MessageType = "connection_ack"
	MessageTypeConnectionError MessageType = "connection_error"
	MessageTypeKeepAlive       MessageType = "ka"

	MessageTypeSubscriptionStart   MessageType = "subscription_start"
	MessageTypeSubscriptionSuccess MessageType = "subscription_success"
	MessageTypeSubscriptionFail    MessageType = "subscription_fail"
	MessageTypeSubscriptionData    MessageType = "subscription_data"
	MessageTypeSubscriptionEnd     MessageType = "subscription_end"
)

// WebSocket close codes used by the protocol.
const (
	CloseGoingAway           = 1001
	CloseProtocolError       = 1002
	CloseUnexpectedCondition = 1011
)

// Message is the envelope for every frame exchanged on a connection.
// Query, Variables and OperationName are only set on subscription_start.
type Message struct {
	ID            string         `json:"id,omitempty"`
	Type          MessageType    `json:"type"`
	Payload       any            `json:"payload,omitempty"`
	Query         string         `json:"query,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// ErrorPayload is the payload of subscription_fail, and of subscription_data
// when an event carries errors.
type ErrorPayload struct {
	Errors []FormattedError `json:"errors"`
}

// ConnectionErrorPayload is the payload of connection_error.
type ConnectionErrorPayload struct {
	Error string `json:"error"`
}

// FormattedError is a single client-visible error.
type FormattedError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location points into the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func ackMessage() *Message {
	return &Message{Type: MessageTypeConnectionAck}
}

func keepAliveMessage() *Message {
	return &Message{Type: MessageTypeKeepAlive}
}

func connectionErrorMessage(reason string) *Message {
	return &Message{
		Type:    MessageTypeConnectionError,
		Payload: ConnectionErrorPayload{Error: reason},
	}
}

func successMessage(id string) *Message {
	return &Message{ID: id, Type: MessageTypeSubscriptionSuccess}
}

func failMessage(id string, errs []FormattedError) *Message {
	return &Message{
		ID:      id,
		Type:    MessageTypeSubscriptionFail,
		Payload: ErrorPayload{Errors: errs},
	}
}

func dataMessage(id string, payload any) *Message {
	return &Message{ID: id, Type: MessageTypeSubscriptionData, Payload: payload}
}
