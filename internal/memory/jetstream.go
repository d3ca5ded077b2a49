package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/plutus-ai/plutus/internal/model"
	natsclient "github.com/plutus-ai/plutus/internal/nats"
)

const (
	// StreamName is the name of the advisory history stream.
	StreamName = "ADVISOR"

	// SubjectPrefix is the prefix for all advisory subjects.
	SubjectPrefix = "advisor"

	fetchWait = 2 * time.Second
)

// StreamStore is a Store backed by NATS JetStream. Every record is a message
// on an append-only stream; deletes and purges are denied by stream policy.
type StreamStore struct {
	client *natsclient.Client
}

// NewStreamStore creates a JetStream-backed store.
func NewStreamStore(client *natsclient.Client) *StreamStore {
	return &StreamStore{client: client}
}

// EnsureStream ensures the advisory stream exists with append-only policy.
func (s *StreamStore) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation turns, insights and context versions",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func messageSubject(userID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, userID, sessionID, role)
}

func insightSubject(userID string, t model.InsightType) string {
	return fmt.Sprintf("%s.%s.insight.%s", SubjectPrefix, userID, t)
}

func contextSubject(userID string) string {
	return fmt.Sprintf("%s.%s.ctx", SubjectPrefix, userID)
}

// AppendMessage publishes a message and returns its stream sequence.
func (s *StreamStore) AppendMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, &PersistenceError{Op: "append message", Err: err}
	}

	ack, err := s.client.JetStream().Publish(ctx, messageSubject(msg.UserID, msg.SessionID, msg.Role), data)
	if err != nil {
		return 0, &PersistenceError{Op: "append message", Err: err}
	}
	return ack.Sequence, nil
}

// SessionMessages returns a session's messages in append order.
func (s *StreamStore) SessionMessages(ctx context.Context, userID, sessionID string, limit int) ([]model.Message, error) {
	filter := fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, userID, sessionID)
	return s.fetchMessages(ctx, filter, limit)
}

// RecentMessages returns the user's most recent messages, oldest first.
func (s *StreamStore) RecentMessages(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	filter := fmt.Sprintf("%s.%s.*.msg.>", SubjectPrefix, userID)
	return s.fetchMessages(ctx, filter, limit)
}

func (s *StreamStore) fetchMessages(ctx context.Context, filter string, limit int) ([]model.Message, error) {
	raw, err := s.fetch(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch messages", Err: err}
	}

	var messages []model.Message
	for _, m := range raw {
		var message model.Message
		if err := json.Unmarshal(m.data, &message); err != nil {
			continue
		}
		message.Sequence = m.seq
		messages = append(messages, message)
	}
	return tail(messages, limit), nil
}

// AppendInsight publishes an insight record.
func (s *StreamStore) AppendInsight(ctx context.Context, ins *model.Insight) error {
	data, err := json.Marshal(ins)
	if err != nil {
		return &PersistenceError{Op: "append insight", Err: err}
	}
	if _, err := s.client.JetStream().Publish(ctx, insightSubject(ins.UserID, ins.Type), data); err != nil {
		return &PersistenceError{Op: "append insight", Err: err}
	}
	return nil
}

// RecentInsights returns the user's most recent insights, oldest first.
func (s *StreamStore) RecentInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	filter := fmt.Sprintf("%s.%s.insight.>", SubjectPrefix, userID)
	raw, err := s.fetch(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch insights", Err: err}
	}

	var insights []model.Insight
	for _, m := range raw {
		var ins model.Insight
		if err := json.Unmarshal(m.data, &ins); err != nil {
			continue
		}
		insights = append(insights, ins)
	}
	return tail(insights, limit), nil
}

// AppendContext stores a snapshot under the next version for the user. The
// publish carries an expected-last-sequence guard on the context subject so
// two concurrent builds cannot both claim the same version; the loser retries
// against the refreshed head.
func (s *StreamStore) AppendContext(ctx context.Context, uc *model.UserContext) (uint64, error) {
	js := s.client.JetStream()
	subject := contextSubject(uc.UserID)

	stream, err := js.Stream(ctx, StreamName)
	if err != nil {
		return 0, &PersistenceError{Op: "append context", Err: err}
	}

	for attempt := 0; attempt < 3; attempt++ {
		lastSeq := uint64(0)
		version := uint64(1)

		head, err := stream.GetLastMsgForSubject(ctx, subject)
		switch {
		case err == nil:
			var prev model.UserContext
			if err := json.Unmarshal(head.Data, &prev); err != nil {
				return 0, &PersistenceError{Op: "append context", Err: err}
			}
			version = prev.Version + 1
			lastSeq = head.Sequence
		case errors.Is(err, jetstream.ErrMsgNotFound):
			// First version for this user.
		default:
			return 0, &PersistenceError{Op: "append context", Err: err}
		}

		stored := *uc
		stored.Version = version
		data, err := json.Marshal(&stored)
		if err != nil {
			return 0, &PersistenceError{Op: "append context", Err: err}
		}

		_, err = js.Publish(ctx, subject, data, jetstream.WithExpectLastSequencePerSubject(lastSeq))
		if err == nil {
			uc.Version = version
			return version, nil
		}
		var apiErr *jetstream.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode != jetstream.JSErrCodeStreamWrongLastSequence {
			return 0, &PersistenceError{Op: "append context", Err: err}
		}
		// Lost the race; re-read the head and try the next version.
	}
	return 0, &PersistenceError{Op: "append context", Err: errors.New("version conflict not resolved")}
}

// LatestContext returns the highest-version snapshot for the user.
func (s *StreamStore) LatestContext(ctx context.Context, userID string) (*model.UserContext, error) {
	js := s.client.JetStream()
	stream, err := js.Stream(ctx, StreamName)
	if err != nil {
		return nil, &PersistenceError{Op: "latest context", Err: err}
	}

	raw, err := stream.GetLastMsgForSubject(ctx, contextSubject(userID))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "latest context", Err: err}
	}

	var uc model.UserContext
	if err := json.Unmarshal(raw.Data, &uc); err != nil {
		return nil, &PersistenceError{Op: "latest context", Err: err}
	}
	return &uc, nil
}

// ContextVersion returns one specific snapshot version.
func (s *StreamStore) ContextVersion(ctx context.Context, userID string, version uint64) (*model.UserContext, error) {
	raw, err := s.fetch(ctx, contextSubject(userID))
	if err != nil {
		return nil, &PersistenceError{Op: "context version", Err: err}
	}

	for _, m := range raw {
		var uc model.UserContext
		if err := json.Unmarshal(m.data, &uc); err != nil {
			continue
		}
		if uc.Version == version {
			return &uc, nil
		}
	}
	return nil, ErrNotFound
}

type rawMsg struct {
	data []byte
	seq  uint64
}

// fetch reads all messages matching a filter subject through an ephemeral
// consumer, in stream order.
func (s *StreamStore) fetch(ctx context.Context, filter string) ([]rawMsg, error) {
	js := s.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filter,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var out []rawMsg
	for {
		batch, err := consumer.Fetch(256, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch: %w", err)
		}
		n := 0
		for msg := range batch.Messages() {
			meta, err := msg.Metadata()
			seq := uint64(0)
			if err == nil {
				seq = meta.Sequence.Stream
			}
			out = append(out, rawMsg{data: msg.Data(), seq: seq})
			n++
		}
		if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}
		if n < 256 {
			break
		}
	}
	return out, nil
}
