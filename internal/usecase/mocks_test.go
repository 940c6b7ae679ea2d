package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/repository"
)

// ---- in-memory job store ----

type memJobRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.Job

	errCreate error
	errCount  error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{byID: map[int64]*model.Job{}}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.errCreate != nil {
		return m.errCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	cp := *job
	m.byID[job.ID] = &cp
	return nil
}

func (m *memJobRepo) Claim(ctx context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.Job
	for _, j := range m.byID {
		if j.State == model.JobQueued && (oldest == nil || j.ID < oldest.ID) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.State = model.JobProcessing
	cp := *oldest
	return &cp, nil
}

func (m *memJobRepo) Finalize(ctx context.Context, tx repository.Tx, id int64, state model.JobState, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.State.CanTransitionTo(state) {
		return domain.ErrInvalidTransition
	}
	j.State = state
	if state == model.JobCompleted {
		j.Result, j.Response = 1, response
	}
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) ListRecentByRequester(ctx context.Context, tx repository.Tx, requesterID string, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.byID {
		if j.RequesterID == requesterID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) CountByState(ctx context.Context, tx repository.Tx, state model.JobState) (int, error) {
	if m.errCount != nil {
		return 0, m.errCount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.byID {
		if j.State == state {
			n++
		}
	}
	return n, nil
}

// seed stores a job exactly as given (state, response and all).
func (m *memJobRepo) seed(j model.Job) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID > m.nextID {
		m.nextID = j.ID
	}
	m.byID[j.ID] = &j
	return &j
}

func (m *memJobRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- dispatcher and directory fakes ----

type fakeDispatcher struct {
	mu       sync.Mutex
	fail     bool
	sent     []model.Destination
	payloads []model.Payload
}

func (f *fakeDispatcher) Deliver(ctx context.Context, dest model.Destination, p model.Payload) model.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, dest)
	f.payloads = append(f.payloads, p)
	if f.fail {
		return model.Outcome{Via: dest.Kind, StatusCode: 500, Body: "boom"}
	}
	return model.Outcome{Delivered: true, Via: dest.Kind, StatusCode: 200}
}

type fakeDirectory struct {
	known map[string]string
}

func (f *fakeDirectory) Remember(ctx context.Context, handle, id string) error {
	f.known[strings.ToLower(handle)] = id
	return nil
}

func (f *fakeDirectory) Resolve(ctx context.Context, ref string) (string, error) {
	if id, ok := f.known[strings.ToLower(strings.TrimSpace(ref))]; ok {
		return id, nil
	}
	return "", domain.ErrRecipientUnknown
}
