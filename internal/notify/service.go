// Package notify queues user notifications and operator alerts in redis and
// delivers notifications by email from a background worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/logger"
	"wtcoin/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	QueueKey  = "notifications"
	FailedKey = "notifications:failed"
	AlertsKey = "alerts:critical"

	maxTries = 3
)

type Job struct {
	UserID  string    `json:"user_id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

type Alert struct {
	Event  string                 `json:"event"`
	Fields map[string]interface{} `json:"fields"`
	Time   time.Time              `json:"time"`
}

// EmailResolver maps a user id to the address notifications go to.
type EmailResolver interface {
	Email(ctx context.Context, userID string) (string, error)
}

type Mailer interface {
	Send(to, subject, body string) error
}

type Service struct {
	redis      *redis.Client
	emails     EmailResolver
	mailer     Mailer
	retryDelay time.Duration
}

func New(rdb *redis.Client, emails EmailResolver, mailer Mailer) *Service {
	return &Service{
		redis:      rdb,
		emails:     emails,
		mailer:     mailer,
		retryDelay: 5 * time.Second,
	}
}

// Notify queues a message for a user. Callers treat failure as non-fatal.
func (s *Service) Notify(ctx context.Context, userID, subject, body string) error {
	job := Job{
		UserID:  userID,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := s.redis.LPush(ctx, QueueKey, string(data)).Err(); err != nil {
		logger.Errorf("Failed to queue notification for %s: %v", userID, err)
		return err
	}

	metrics.RecordNotification("queued")
	logger.Debugf("Notification queued: %s for %s", subject, userID)
	return nil
}

// Alert records a critical event for operators. Stuck or mismatched funds
// end up here.
func (s *Service) Alert(ctx context.Context, event string, fields map[string]interface{}) error {
	data, err := json.Marshal(Alert{Event: event, Fields: fields, Time: time.Now()})
	if err != nil {
		return err
	}
	return s.redis.LPush(ctx, AlertsKey, string(data)).Err()
}

// Start delivers queued notifications until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, QueueKey).Result()
	if err != nil {
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	job.Tries++
	to, err := s.emails.Email(ctx, job.UserID)
	if errors.Is(err, api.ErrNotFound) {
		logger.Warnf("Dropping notification for %s: no email on file", job.UserID)
		metrics.RecordNotification("dropped")
		return
	}
	if err == nil {
		err = s.mailer.Send(to, job.Subject, job.Body)
	}
	if err != nil {
		logger.Errorf("Failed to deliver notification to %s: %v", job.UserID, err)

		if job.Tries < maxTries {
			time.Sleep(s.retryDelay)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.WithoutCancel(ctx), QueueKey, string(data))
			logger.Infof("Retrying notification to %s (attempt %d)", job.UserID, job.Tries+1)
		} else {
			s.saveFailed(ctx, job, err)
		}
		return
	}

	metrics.RecordNotification("sent")
	logger.Infof("Notification sent to %s", job.UserID)
}

func (s *Service) saveFailed(ctx context.Context, job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.WithoutCancel(ctx), FailedKey, string(data))
	metrics.RecordNotification("failed")
	logger.Errorf("Notification for %s moved to failed queue after %d attempts", job.UserID, job.Tries)
}

// QueueLength reports the backlog and mirrors it into the queue gauge.
func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, QueueKey).Result()
	metrics.NotificationQueueLength.Set(float64(length))
	return length
}

// MonitorQueue samples the queue length every interval until ctx ends.
func (s *Service) MonitorQueue(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.QueueLength(ctx)
		}
	}
}

func (s *Service) Close() error {
	return s.redis.Close()
}

type SMTPMailer struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	fromName string
}

func NewSMTPMailer(host, port, user, pass, from, fromName string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from, fromName: fromName}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", m.fromName, m.from)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "\r\n" + body

	var auth smtp.Auth
	if m.user != "" && m.pass != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, []byte(message))
}
