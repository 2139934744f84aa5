package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	"github.com/noah-isme/rc-quote-api/pkg/mailer"
)

const (
	notInformed      = "Não informado"
	notInformedDate  = "Não informada"
	displayDateTime  = "02/01/2006 às 15:04"
	displayDate      = "02/01/2006"
	defaultRecipient = "RC Construções"
)

var subjectTags = map[models.Priority]string{
	models.PriorityAttachments: "🔥 [ANEXOS]",
	models.PriorityBudget:      "⚡ [ORÇAMENTO]",
	models.PriorityNormal:      "📧",
}

// quoteView is the data handed to the mail templates.
type quoteView struct {
	Quote       models.Quote
	ProjectType string
	StartDate   string
	Budget      string
	Services    []string
	Attachments []attachmentView
	Warnings    []string
	Priority    models.Priority
	SentAt      string
	ClientIP    string
	UserAgent   string
}

type attachmentView struct {
	Name string
	Size string
}

// ComposedQuote is a quote email ready for the transport.
type ComposedQuote struct {
	Message  mailer.Message
	Priority models.Priority
	HTML     string
}

// QuoteComposer renders quote emails.
type QuoteComposer struct {
	cfg  config.MailConfig
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewQuoteComposer parses the mail templates.
func NewQuoteComposer(cfg config.MailConfig) *QuoteComposer {
	return &QuoteComposer{
		cfg:  cfg,
		html: htmltemplate.Must(htmltemplate.New("quote.html").Parse(quoteHTMLTemplate)),
		text: texttemplate.Must(texttemplate.New("quote.txt").Parse(quoteTextTemplate)),
	}
}

// PriorityFor ranks attachments above a stated budget above everything else.
func PriorityFor(q models.Quote, attachments int) models.Priority {
	switch {
	case attachments > 0:
		return models.PriorityAttachments
	case q.Budget != "":
		return models.PriorityBudget
	default:
		return models.PriorityNormal
	}
}

// Subject builds the subject line for a quote.
func Subject(q models.Quote, p models.Priority) string {
	return strings.Join([]string{
		subjectTags[p],
		"Solicitação de Orçamento",
		"-",
		q.Name,
		"(" + q.City + ")",
		"-",
		upperFirst(q.ProjectType),
	}, " ")
}

// Compose renders the message for a validated quote and its accepted attachments.
func (c *QuoteComposer) Compose(q models.Quote, req dto.QuoteRequest, files []models.StoredFile, warnings []string, client models.ClientInfo, at time.Time) (*ComposedQuote, error) {
	priority := PriorityFor(q, len(files))

	view := quoteView{
		Quote:       q,
		ProjectType: upperFirst(q.ProjectType),
		StartDate:   formatStartDate(req.StartDate),
		Budget:      orDefault(q.Budget, notInformed),
		Services:    req.Services,
		Warnings:    warnings,
		Priority:    priority,
		SentAt:      at.Format(displayDateTime),
		ClientIP:    orDefault(client.IP, "N/A"),
		UserAgent:   orDefault(client.UserAgent, "N/A"),
	}
	attachments := make([]mailer.Attachment, 0, len(files))
	for _, f := range files {
		view.Attachments = append(view.Attachments, attachmentView{Name: f.OriginalName, Size: humanize.IBytes(uint64(f.Size))})
		attachments = append(attachments, mailer.Attachment{Path: f.Path, Name: f.OriginalName})
	}

	var html, text bytes.Buffer
	if err := c.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render quote html: %w", err)
	}
	if err := c.text.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render quote text: %w", err)
	}

	msg := mailer.Message{
		From:        c.cfg.From,
		FromName:    c.cfg.FromName,
		To:          []string{c.cfg.To},
		ReplyTo:     q.Email,
		ReplyToName: q.Name,
		Subject:     Subject(q, priority),
		HTMLBody:    html.String(),
		TextBody:    text.String(),
		Attachments: attachments,
	}
	if c.cfg.Admin != "" && !strings.EqualFold(c.cfg.Admin, c.cfg.To) {
		msg.Bcc = []string{c.cfg.Admin}
	}
	if priority != models.PriorityNormal {
		msg.Headers = map[string]string{"X-Priority": "1", "Importance": "High"}
	}

	return &ComposedQuote{Message: msg, Priority: priority, HTML: html.String()}, nil
}

func formatStartDate(raw string) string {
	if raw == "" {
		return notInformedDate
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return "Data inválida"
	}
	return t.Format(displayDate)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

const quoteHTMLTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8"><title>Nova Solicitação de Orçamento - ` + defaultRecipient + `</title></head>
<body>
<h1>Nova Solicitação de Orçamento</h1>
<p>Recebida em {{.SentAt}}</p>
<h3>Dados do cliente</h3>
<ul>
<li><strong>Nome:</strong> {{.Quote.Name}}</li>
<li><strong>E-mail:</strong> {{.Quote.Email}}</li>
<li><strong>Telefone:</strong> {{.Quote.Phone}}</li>
<li><strong>Cidade:</strong> {{.Quote.City}}</li>
<li><strong>Endereço:</strong> {{.Quote.Address}}</li>
</ul>
<h3>Projeto</h3>
<ul>
<li><strong>Tipo:</strong> {{.ProjectType}}</li>
<li><strong>Início previsto:</strong> {{.StartDate}}</li>
<li><strong>Orçamento:</strong> {{.Budget}}</li>
</ul>
{{if .Services}}<h3>Serviços</h3>
<ul>{{range .Services}}<li>✓ {{.}}</li>{{end}}</ul>
{{else}}<p>Nenhum serviço específico selecionado.</p>
{{end}}<h3>Descrição</h3>
<pre>{{.Quote.Message}}</pre>
{{if .Attachments}}<h3>Anexos</h3>
<ul>{{range .Attachments}}<li>📎 {{.Name}} ({{.Size}})</li>{{end}}</ul>
{{end}}{{if .Warnings}}<h3>Avisos</h3>
<ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>
{{end}}<hr>
<p><small>IP: {{.ClientIP}} | User-Agent: {{.UserAgent}}</small></p>
</body>
</html>
`

const quoteTextTemplate = `Nova Solicitação de Orçamento
Recebida em {{.SentAt}}

Nome: {{.Quote.Name}}
E-mail: {{.Quote.Email}}
Telefone: {{.Quote.Phone}}
Cidade: {{.Quote.City}}
Endereço: {{.Quote.Address}}

Tipo de projeto: {{.ProjectType}}
Início previsto: {{.StartDate}}
Orçamento: {{.Budget}}
{{if .Services}}
Serviços:
{{range .Services}}✓ {{.}}
{{end}}{{else}}
Nenhum serviço específico selecionado.
{{end}}
Descrição:
{{.Quote.Message}}
{{if .Attachments}}
Anexos:
{{range .Attachments}}📎 {{.Name}} ({{.Size}})
{{end}}{{end}}{{if .Warnings}}
Avisos:
{{range .Warnings}}- {{.}}
{{end}}{{end}}
IP: {{.ClientIP}}
`
