package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

type MockResolver struct{ mock.Mock }

func (m *MockResolver) Email(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type MockMailer struct{ mock.Mock }

func (m *MockMailer) Send(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func newTestService(rdb *redis.Client) (*Service, *MockResolver, *MockMailer) {
	resolver, mailer := new(MockResolver), new(MockMailer)
	svc := New(rdb, resolver, mailer)
	svc.retryDelay = 0
	return svc, resolver, mailer
}

func queued(t *testing.T, job Job) string {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func TestNotify(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, _, _ := newTestService(db)

	rmock.Regexp().ExpectLPush(QueueKey, `"user_id":"u1".*"subject":"Withdrawal failed"`).SetVal(1)

	err := svc.Notify(context.Background(), "u1", "Withdrawal failed", "funds returned")
	assert.NoError(t, err)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestNotify_RedisDown(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, _, _ := newTestService(db)

	rmock.Regexp().ExpectLPush(QueueKey, `.*`).SetErr(errors.New("connection refused"))

	err := svc.Notify(context.Background(), "u1", "s", "b")
	assert.Error(t, err)
}

func TestAlert(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, _, _ := newTestService(db)

	rmock.Regexp().ExpectLPush(AlertsKey, `"event":"withdrawal_compensation_failed".*"request_id":"r1"`).SetVal(1)

	err := svc.Alert(context.Background(), "withdrawal_compensation_failed", map[string]interface{}{"request_id": "r1"})
	assert.NoError(t, err)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestProcessNext_Delivers(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, resolver, mailer := newTestService(db)

	rmock.ExpectBRPop(2*time.Second, QueueKey).
		SetVal([]string{QueueKey, queued(t, Job{UserID: "u1", Subject: "Hi", Body: "Body"})})
	resolver.On("Email", mock.Anything, "u1").Return("u1@example.com", nil)
	mailer.On("Send", "u1@example.com", "Hi", "Body").Return(nil)

	svc.processNext(context.Background())

	mailer.AssertExpectations(t)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestProcessNext_RetriesThenFails(t *testing.T) {
	tests := []struct {
		name     string
		tries    int
		expected string
		pattern  string
	}{
		{"first failure is requeued", 0, QueueKey, `"tries":1`},
		{"second failure is requeued", 1, QueueKey, `"tries":2`},
		{"third failure goes to failed list", 2, FailedKey, `"error":"smtp: 421"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, rmock := redismock.NewClientMock()
			svc, resolver, mailer := newTestService(db)

			rmock.ExpectBRPop(2*time.Second, QueueKey).
				SetVal([]string{QueueKey, queued(t, Job{UserID: "u1", Subject: "Hi", Body: "Body", Tries: tt.tries})})
			resolver.On("Email", mock.Anything, "u1").Return("u1@example.com", nil)
			mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: 421"))
			rmock.Regexp().ExpectLPush(tt.expected, tt.pattern).SetVal(1)

			svc.processNext(context.Background())

			assert.NoError(t, rmock.ExpectationsWereMet())
		})
	}
}

func TestProcessNext_DropsWithoutEmail(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, resolver, mailer := newTestService(db)

	rmock.ExpectBRPop(2*time.Second, QueueKey).
		SetVal([]string{QueueKey, queued(t, Job{UserID: "ghost", Subject: "Hi"})})
	resolver.On("Email", mock.Anything, "ghost").Return("", api.ErrNotFound)

	svc.processNext(context.Background())

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestProcessNext_BadPayload(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, resolver, _ := newTestService(db)

	rmock.ExpectBRPop(2*time.Second, QueueKey).SetVal([]string{QueueKey, "{not json"})

	svc.processNext(context.Background())

	resolver.AssertNotCalled(t, "Email", mock.Anything, mock.Anything)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestQueueLength(t *testing.T) {
	db, rmock := redismock.NewClientMock()
	svc, _, _ := newTestService(db)

	rmock.ExpectLLen(QueueKey).SetVal(7)

	assert.Equal(t, int64(7), svc.QueueLength(context.Background()))
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestStart_StopsOnCancel(t *testing.T) {
	db, _ := redismock.NewClientMock()
	svc, _, _ := newTestService(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
