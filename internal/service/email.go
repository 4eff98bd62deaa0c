package service

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// smtpEmailService delivers mail through a plain SMTP relay.
type smtpEmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewEmailService(host, port, username, password, from string) EmailService {
	p, _ := strconv.Atoi(port)
	return &smtpEmailService{
		host:     host,
		port:     p,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *smtpEmailService) SendOverdueLoanReminder(ctx context.Context, member *domain.Member, loan *domain.Loan) error {
	subject, plain, html := overdueReminderContent(member, loan)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", member.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", html)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)

	logger.ExternalServiceCall("smtp", "DialAndSend", "to", member.Email)
	err := d.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "DialAndSend", err)
	if err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}

	return nil
}

type sendGridEmailService struct {
	apiKey    string
	fromEmail string
	fromName  string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendGridEmailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridEmailService) SendOverdueLoanReminder(ctx context.Context, member *domain.Member, loan *domain.Loan) error {
	subject, plain, html := overdueReminderContent(member, loan)

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(member.Name, member.Email)
	message := mail.NewSingleEmail(from, subject, recipient, plain, html)

	client := sendgrid.NewSendClient(s.apiKey)

	logger.ExternalServiceCall("sendgrid", "Send", "to", member.Email)
	response, err := client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// logEmailService only logs; it is used when no mail transport is configured.
type logEmailService struct{}

func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendOverdueLoanReminder(ctx context.Context, member *domain.Member, loan *domain.Loan) error {
	subject, _, _ := overdueReminderContent(member, loan)
	logger.InfoContext(ctx, "Email not sent, no transport configured", "to", member.Email, "subject", subject, "loanID", loan.ID)
	return nil
}

var overdueReminderHTML = template.Must(template.New("overdue").Parse(`<html>
	<body>
		<h2>Your tool rental is overdue</h2>
		<p>Hello {{.Name}},</p>
		<p>Loan <strong>{{.LoanID}}</strong> was due on <strong>{{.Due}}</strong> and covers {{.Tools}} tool(s).</p>
		<p>Please bring the tools back as soon as possible.</p>
	</body>
</html>`))

func overdueReminderContent(member *domain.Member, loan *domain.Loan) (subject, plain, htmlBody string) {
	subject = "Your tool rental is overdue"
	due := loan.DueAt.Format("2006-01-02 15:04 MST")

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", member.Name)
	fmt.Fprintf(&b, "Loan %s was due on %s and has not been returned yet.\n", loan.ID, due)
	fmt.Fprintf(&b, "It covers %d tool(s). Late returns are charged for every started day past the due time.\n\n", len(loan.Items))
	b.WriteString("Please bring the tools back as soon as possible.\n\nBest regards,\nThe Tool Library Team")
	plain = b.String()

	var h strings.Builder
	err := overdueReminderHTML.Execute(&h, struct {
		Name   string
		LoanID string
		Due    string
		Tools  int
	}{member.Name, loan.ID.String(), due, len(loan.Items)})
	if err != nil {
		logger.Error("Failed to render reminder email", "error", err, "loanID", loan.ID)
	}
	htmlBody = h.String()

	return subject, plain, htmlBody
}
