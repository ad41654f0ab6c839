package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"stackit/internal/config"
	"stackit/internal/models"
)

//go:embed templates/*.html
var mailTemplates embed.FS

type MailService struct {
	cfg    config.SMTPConfig
	tmpl   *template.Template
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

// NewMailService SMTP 未配置时返回 nil，调用方按"不发邮件"处理
func NewMailService(cfg config.SMTPConfig, logger *zap.Logger) (*MailService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		logger.Warn("mail service disabled: missing SMTP configuration")
		return nil, nil
	}
	tmpl, err := template.ParseFS(mailTemplates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &MailService{cfg: cfg, tmpl: tmpl, send: smtp.SendMail, logger: logger}, nil
}

func (s *MailService) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *MailService) sendHTML(to []string, subject, body string) error {
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"From: StackIt <%s>\r\n"+
		"Subject: %s\r\n"+
		"%s\r\n%s", strings.Join(to, ","), s.cfg.From, subject, mime, body))

	if err := s.send(addr, auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	s.logger.Debug("email sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// SendNotification 只由 AsyncEmitter 的 worker 调用，本身同步发送
func (s *MailService) SendNotification(to string, n models.Notification) error {
	if to == "" {
		return fmt.Errorf("recipient has no email")
	}
	link := ""
	if n.QuestionID != nil && s.cfg.SiteURL != "" {
		link = fmt.Sprintf("%s/questions/%d", strings.TrimRight(s.cfg.SiteURL, "/"), *n.QuestionID)
	}
	body, err := s.render("notification.html", map[string]string{
		"Message": n.Message,
		"Link":    link,
	})
	if err != nil {
		return err
	}
	return s.sendHTML([]string{to}, mailSubject(n.Type), body)
}

func mailSubject(t models.NotificationType) string {
	switch t {
	case models.NotificationTypeAnswer:
		return "[StackIt] Your question has a new answer"
	case models.NotificationTypeAccept:
		return "[StackIt] Your answer was accepted"
	}
	return "[StackIt] New notification"
}
