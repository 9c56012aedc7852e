package optin_test

import (
	"context"
	"sync"
	"time"

	optin "github.com/goliatone/go-optin"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// MockEntryStore implements optin.EntryStore
type MockEntryStore struct {
	mock.Mock
}

func (m *MockEntryStore) Create(ctx context.Context, entry *optin.Entry) (*optin.Entry, error) {
	args := m.Called(ctx, entry)
	if e, ok := args.Get(0).(*optin.Entry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEntryStore) FindPendingByToken(ctx context.Context, token string) (*optin.Entry, error) {
	args := m.Called(ctx, token)
	if e, ok := args.Get(0).(*optin.Entry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEntryStore) UpdateStatus(ctx context.Context, id optin.EntryID, from, to optin.EntryStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntryStore) GetByID(ctx context.Context, id optin.EntryID) (*optin.Entry, error) {
	args := m.Called(ctx, id)
	if e, ok := args.Get(0).(*optin.Entry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []optin.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event optin.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []optin.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]optin.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// routerContext aliases router.Context so the embedded field name does not
// clash with the Context() method below.
type routerContext = router.Context

// stubContext overrides the router.Context methods the controller uses.
// Calling any other method panics.
type stubContext struct {
	routerContext

	ctx     context.Context
	method  string
	query   map[string]string
	payload *optin.VerifyTokenPayload

	status   int
	body     any
	location string
}

func newStubContext(method string, query map[string]string) *stubContext {
	if query == nil {
		query = map[string]string{}
	}
	return &stubContext{
		ctx:    context.Background(),
		method: method,
		query:  query,
	}
}

func (s *stubContext) Context() context.Context {
	return s.ctx
}

func (s *stubContext) Method() string {
	return s.method
}

func (s *stubContext) Query(key string, defaultValue string) string {
	if v, ok := s.query[key]; ok {
		return v
	}
	return defaultValue
}

func (s *stubContext) Bind(i any) error {
	if s.payload == nil {
		return nil
	}
	if dst, ok := i.(*optin.VerifyTokenPayload); ok {
		*dst = *s.payload
	}
	return nil
}

func (s *stubContext) JSON(code int, val any) error {
	s.status = code
	s.body = val
	return nil
}

func (s *stubContext) Redirect(path string, status ...int) error {
	s.location = path
	if len(status) > 0 {
		s.status = status[0]
	}
	return nil
}
