package rpc

import "strings"

// Default topic convention values.
const (
	// DefaultBasePrefix roots every generated topic.
	DefaultBasePrefix = "datalink"

	// Default suffixes distinguish the three envelope kinds.
	DefaultRequestSuffix      = "request"
	DefaultResponseSuffix     = "response"
	DefaultNotificationSuffix = "notification"
)

// TopicConfig is the topic naming convention. Generated topics have the form
//
//	{base}/{service_prefix or service}/{method}/{suffix}[/{transaction_id}]
//
// The transaction ID segment is appended only when IncludeTransactionID is
// set and a transaction ID is supplied. A Client adopts a copy at
// construction; the convention is immutable afterwards.
type TopicConfig struct {
	// BasePrefix roots all generated topics.
	BasePrefix string

	// ServicePrefix, when set, replaces the per-call service segment.
	ServicePrefix string

	// Suffixes for the three envelope kinds.
	RequestSuffix      string
	ResponseSuffix     string
	NotificationSuffix string

	// IncludeTransactionID appends the transaction ID as a final segment on
	// request and response topics.
	IncludeTransactionID bool
}

// DefaultTopicConfig returns the stock convention.
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{
		BasePrefix:           DefaultBasePrefix,
		RequestSuffix:        DefaultRequestSuffix,
		ResponseSuffix:       DefaultResponseSuffix,
		NotificationSuffix:   DefaultNotificationSuffix,
		IncludeTransactionID: true,
	}
}

// Clone returns a copy. TopicConfig holds no reference types, so this is a
// plain value copy; the method exists for symmetry with Config.
func (t TopicConfig) Clone() TopicConfig {
	return t
}

// RequestTopic generates the topic a request for service.method is published
// to. Identical inputs always yield byte-identical topics.
func (t TopicConfig) RequestTopic(service, method, transactionID string) string {
	return t.build(service, method, t.RequestSuffix, transactionID)
}

// ResponseTopic generates the topic the response to service.method is
// expected on.
func (t TopicConfig) ResponseTopic(service, method, transactionID string) string {
	return t.build(service, method, t.ResponseSuffix, transactionID)
}

// NotificationTopic generates the fire-and-forget topic for service.method.
// Notifications never carry a transaction ID segment.
func (t TopicConfig) NotificationTopic(service, method string) string {
	return t.build(service, method, t.NotificationSuffix, "")
}

func (t TopicConfig) build(service, method, suffix, transactionID string) string {
	seg := service
	if t.ServicePrefix != "" {
		seg = t.ServicePrefix
	}

	parts := []string{t.BasePrefix, seg, method, suffix}
	if t.IncludeTransactionID && transactionID != "" {
		parts = append(parts, transactionID)
	}
	return strings.Join(parts, "/")
}

// topicTransactionID extracts the trailing topic segment when it is a valid
// transaction ID, for correlating responses whose payload omits the ID.
func topicTransactionID(topic string) string {
	idx := strings.LastIndexByte(topic, '/')
	if idx < 0 || idx+1 >= len(topic) {
		return ""
	}
	last := topic[idx+1:]
	if !ValidateTransactionID(last) {
		return ""
	}
	return last
}
