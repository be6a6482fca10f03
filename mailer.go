package accounts

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	gomail "github.com/wneessen/go-mail"
)

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer connects the mailer to the given relay. Password auth is
// skipped when no username is provided, which is what local relays and
// test containers expect.
func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}

	if username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(username),
			gomail.WithPassword(password),
		)
	}

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create SMTP client")
	}

	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()

	if err := msg.From(m.from); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid mail sender address")
	}

	if err := msg.To(to); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid mail recipient address")
	}

	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver mail")
	}

	return nil
}

// LogMailer writes messages to the logger instead of delivering them.
// Useful for development setups without an SMTP relay.
type LogMailer struct {
	Logger Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}

	logger.Info("outgoing mail", "to", to, "subject", subject, "bytes", len(htmlBody))

	return nil
}

// MailDispatcher sends messages on a background worker so request
// handlers never block on mail delivery. Callers get no delivery
// feedback; failures are logged and dropped.
type MailDispatcher struct {
	mailer  Mailer
	logger  Logger
	timeout time.Duration
	queue   chan mailJob
	wg      sync.WaitGroup
	once    sync.Once
}

type mailJob struct {
	to      string
	subject string
	body    string
}

// MailDispatcherOption customizes the dispatcher.
type MailDispatcherOption func(*MailDispatcher)

// WithMailDispatcherLogger overrides the logger for delivery failures.
func WithMailDispatcherLogger(logger Logger) MailDispatcherOption {
	return func(d *MailDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMailDispatcherTimeout bounds each delivery attempt.
func WithMailDispatcherTimeout(timeout time.Duration) MailDispatcherOption {
	return func(d *MailDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewMailDispatcher wraps a Mailer with an asynchronous delivery queue.
func NewMailDispatcher(mailer Mailer, opts ...MailDispatcherOption) *MailDispatcher {
	d := &MailDispatcher{
		mailer:  mailer,
		logger:  defLogger{},
		timeout: 30 * time.Second,
		queue:   make(chan mailJob, 64),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Dispatch enqueues a message for background delivery and returns
// immediately. When the queue is full the message is sent inline on a
// new goroutine rather than blocking the caller.
func (d *MailDispatcher) Dispatch(to, subject, htmlBody string) {
	job := mailJob{to: to, subject: subject, body: htmlBody}

	select {
	case d.queue <- job:
	default:
		go d.deliver(job)
	}
}

// Close drains the queue and stops the worker.
func (d *MailDispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *MailDispatcher) run() {
	defer d.wg.Done()

	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *MailDispatcher) deliver(job mailJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.mailer.Send(ctx, job.to, job.subject, job.body); err != nil {
		d.logger.Error("mail delivery failed", "to", job.to, "subject", job.subject, "error", err)
	}
}
