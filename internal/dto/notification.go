package dto

import "time"

// WebhookQuoteData is the payload of the novo_orcamento event.
type WebhookQuoteData struct {
	Nome        string `json:"nome"`
	Email       string `json:"email"`
	Telefone    string `json:"telefone"`
	Cidade      string `json:"cidade"`
	TipoProjeto string `json:"tipo_projeto"`
	Orcamento   string `json:"orcamento"`
}

// EmailBackup is the JSON copy written after a quote email is sent.
type EmailBackup struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	ClientData  map[string]string `json:"client_data"`
	EmailHTML   string            `json:"email_html"`
	Attachments []string          `json:"attachments"`
	IPAddress   string            `json:"ip_address"`
}

// RetentionAlert is the webhook payload sent after a large cleanup.
type RetentionAlert struct {
	Mode         string    `json:"mode"`
	FilesRemoved int       `json:"files_removed"`
	BytesFreed   int64     `json:"bytes_freed"`
	BytesHuman   string    `json:"bytes_human"`
	Errors       []string  `json:"errors,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}
