package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"studieplekken/internal/logger"
	"studieplekken/internal/metrics"
)

const (
	mailQueueKey  = "mails"
	failedMailKey = "mails:failed"
	maxTries      = 3
)

type MailJob struct {
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues reservation mails on Redis and drains the queue over SMTP
// in a background worker.
type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

func New(fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
	}
}

func (s *Service) Send(ctx context.Context, to, name, mailType, subject, body string) error {
	job := MailJob{
		To:      to,
		Name:    name,
		Type:    mailType,
		Subject: subject,
		Body:    body,
		Tries:   0,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal mail job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, mailQueueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue mail to %s: %v", to, err)
		return err
	}

	metrics.MailQueueLength.Inc()
	logger.Infof("Mail queued: %s to %s", subject, to)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Mail worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Mail worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, mailQueueKey).Result()
	if err != nil {
		return
	}
	metrics.MailQueueLength.Dec()

	var job MailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad mail data: %v", err)
		return
	}

	job.Tries++
	logger.Infof("Sending mail to %s (attempt %d)", job.To, job.Tries)
	if err := s.sendNow(job); err != nil {
		logger.Errorf("Failed to send mail to %s: %v", job.To, err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), mailQueueKey, data)
			metrics.MailQueueLength.Inc()
			logger.Infof("Retrying mail to %s (attempt %d)", job.To, job.Tries+1)
		} else {
			logger.Errorf("Mail to %s failed after %d attempts", job.To, maxTries)
			metrics.RecordMail(job.Type, "failed")
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordMail(job.Type, "sent")
	logger.Infof("Mail sent to %s", job.To)
}

func (s *Service) sendNow(job MailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job MailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedMailKey, data)
	logger.Errorf("Mail moved to failed queue: %s", job.To)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, mailQueueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

func (s *Service) SendReservationApproved(ctx context.Context, email, name, locationName string, start, end time.Time) error {
	subject := "Seat confirmed - " + locationName
	body := fmt.Sprintf(`Hi %s,

Your study seat is confirmed.

Location: %s
From: %s
Until: %s

Remember to scan your attendance when you arrive.

- Studieplekken`, name, locationName,
		start.Format("Jan 2, 2006 at 15:04"), end.Format("15:04"))

	return s.Send(ctx, email, name, "reservation_approved", subject, body)
}

func (s *Service) SendReservationRejected(ctx context.Context, email, name, locationName string, start time.Time) error {
	subject := "No seat available - " + locationName
	body := fmt.Sprintf(`Hi %s,

Unfortunately all seats for your requested timeslot were taken:

Location: %s
From: %s

You can try another timeslot or location.

- Studieplekken`, name, locationName, start.Format("Jan 2, 2006 at 15:04"))

	return s.Send(ctx, email, name, "reservation_rejected", subject, body)
}

func (s *Service) SendNoShowNotice(ctx context.Context, email, name, locationName string, date time.Time) error {
	subject := "Missed reservation - " + locationName
	body := fmt.Sprintf(`Hi %s,

You had a seat reserved at %s on %s but no attendance was scanned.
Repeated no-shows can lead to reservation restrictions.

- Studieplekken`, name, locationName, date.Format("Jan 2, 2006"))

	return s.Send(ctx, email, name, "no_show_notice", subject, body)
}
