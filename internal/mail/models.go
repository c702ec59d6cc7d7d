package mail

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the delivery state of a mail.
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Collection is the MongoDB collection mails are stored in.
const Collection = "mails"

// Attachment references a blob kept in object storage.
type Attachment struct {
	Name        string `json:"name" bson:"name"`
	Key         string `json:"-" bson:"key"`
	Size        int64  `json:"size" bson:"size"`
	ContentType string `json:"contentType,omitempty" bson:"contentType,omitempty"`
}

// Mail is an outgoing message and its delivery state.
type Mail struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	From        string             `json:"from,omitempty" bson:"from,omitempty"`
	To          []string           `json:"to" bson:"to"`
	Cc          []string           `json:"cc,omitempty" bson:"cc,omitempty"`
	Bcc         []string           `json:"bcc,omitempty" bson:"bcc,omitempty"`
	Subject     string             `json:"subject" bson:"subject"`
	Text        string             `json:"text,omitempty" bson:"text,omitempty"`
	HTML        string             `json:"html,omitempty" bson:"html,omitempty"`
	Status      Status             `json:"status" bson:"status"`
	Error       string             `json:"error,omitempty" bson:"error,omitempty"`
	Attachments []Attachment       `json:"attachments,omitempty" bson:"attachments,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt,omitempty"`
	SentAt      *time.Time         `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
}

// Validate checks the document before it is written.
func (m *Mail) Validate() error {
	var errs []error
	if len(m.To)+len(m.Cc)+len(m.Bcc) == 0 {
		errs = append(errs, errors.New("at least one recipient is required"))
	}
	if m.From != "" {
		if err := ValidateAddresses("from", []string{m.From}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ValidateAddresses("to", m.To); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateAddresses("cc", m.Cc); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateAddresses("bcc", m.Bcc); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		errs = append(errs, errors.New("subject is required"))
	}
	if !m.Status.Valid() {
		errs = append(errs, fmt.Errorf("status %q is not one of queued, sent, failed", m.Status))
	}
	return errors.Join(errs...)
}

// Attachment returns the attachment with the given name.
func (m *Mail) Attachment(name string) (Attachment, bool) {
	for _, a := range m.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}

// ValidateAddresses checks that every entry parses as an RFC 5322 address.
func ValidateAddresses(field string, list []string) error {
	for _, a := range list {
		if _, err := netmail.ParseAddress(a); err != nil {
			return fmt.Errorf("%s: invalid address %q", field, a)
		}
	}
	return nil
}
