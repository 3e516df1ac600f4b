package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voicethoughts/internal/identity"
	"voicethoughts/internal/thought/model"
	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/metrics"
)

var (
	ErrUnauthenticated  = errors.New("no verified identity")
	ErrInvalidInput     = errors.New("no content provided")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrStoreWriteFailed = errors.New("record store write failed")
)

// Store is the persistence the service needs. Implementations must scope every
// call to the given identity.
type Store interface {
	ListByOwner(ctx context.Context, id identity.Identity) ([]model.Thought, error)
	Insert(ctx context.Context, id identity.Identity, t model.Thought) (*model.Thought, error)
}

// Publisher fans a newly created thought out to the owner's live clients.
type Publisher interface {
	PublishThought(t model.Thought)
}

type ThoughtService struct {
	Repo    Store
	Hub     Publisher
	Metrics *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewThoughtService wires the service. hub and m may be nil.
func NewThoughtService(repo Store, hub Publisher, m *metrics.Metrics) *ThoughtService {
	return &ThoughtService{
		Repo:    repo,
		Hub:     hub,
		Metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
}

func (s *ThoughtService) ListThoughts(ctx context.Context, id identity.Identity) ([]model.Thought, error) {
	if id.UserID == "" {
		return nil, ErrUnauthenticated
	}

	thoughts, err := s.Repo.ListByOwner(ctx, id)
	s.observe("list", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if thoughts == nil {
		thoughts = []model.Thought{}
	}
	return thoughts, nil
}

// CreateThought stores a new thought owned by id. Title and content are kept
// as given; content must not be empty.
func (s *ThoughtService) CreateThought(ctx context.Context, id identity.Identity, title, content string) (*model.Thought, error) {
	if id.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if content == "" {
		return nil, ErrInvalidInput
	}

	t := model.Thought{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		CreatedAt: s.now(),
		OwnerID:   id.UserID,
	}

	saved, err := s.Repo.Insert(ctx, id, t)
	s.observe("insert", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	if s.Hub != nil {
		s.Hub.PublishThought(*saved)
	}
	logger.Sugar.Infof("Created thought %s for user %s", saved.ID, saved.OwnerID)
	return saved, nil
}

func (s *ThoughtService) observe(op string, err error) {
	if s.Metrics != nil {
		s.Metrics.ObserveStore(op, err)
	}
}
