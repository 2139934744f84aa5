package models

import "time"

// TransferStatus is the server-side outcome of receiving an uploaded file.
type TransferStatus int

const (
	TransferOK TransferStatus = iota
	TransferTooLarge
	TransferPartial
	TransferNoFile
	TransferNoTempDir
	TransferWriteFailed
)

// String returns a human-readable description of the transfer outcome.
func (s TransferStatus) String() string {
	switch s {
	case TransferOK:
		return "ok"
	case TransferTooLarge:
		return "file exceeds the size limit"
	case TransferPartial:
		return "file was only partially received"
	case TransferNoFile:
		return "no file was received"
	case TransferNoTempDir:
		return "temporary directory unavailable"
	case TransferWriteFailed:
		return "failed to write file to disk"
	default:
		return "unknown transfer error"
	}
}

// UploadCandidate is a received file awaiting validation.
type UploadCandidate struct {
	OriginalName string
	DeclaredType string
	Size         int64
	TempPath     string
	Status       TransferStatus
}

// StoredFile is an accepted attachment persisted in the upload directory.
type StoredFile struct {
	StoredName   string    `json:"storedName"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	CreatedAt    time.Time `json:"createdAt"`
	Directory    string    `json:"directory"`
	Path         string    `json:"-"`
}

// UploadOutcome lists accepted files in submission order and a warning per rejected file.
type UploadOutcome struct {
	Accepted []StoredFile `json:"accepted"`
	Warnings []string     `json:"warnings,omitempty"`
}

// TotalSize sums the size of every accepted file.
func (o UploadOutcome) TotalSize() int64 {
	var total int64
	for _, f := range o.Accepted {
		total += f.Size
	}
	return total
}
