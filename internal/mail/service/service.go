package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gomailer/mail-service/internal/crud"
	"github.com/gomailer/mail-service/internal/mail"
	"github.com/gomailer/mail-service/internal/mail/outbox"
	"github.com/gomailer/mail-service/pkg/logger"
	"github.com/gomailer/mail-service/pkg/metrics"
)

var (
	ErrNotFound            = errors.New("mail not found")
	ErrAttachmentsDisabled = errors.New("attachment storage not configured")
)

// DefaultURLExpiry bounds presigned attachment URLs when no expiry is configured.
const DefaultURLExpiry = 15 * time.Minute

// Store is the part of crud.BaseService[mail.Mail] the service uses.
type Store interface {
	GetAll(ctx context.Context, filter crud.Filter, opts crud.ListOptions) ([]mail.Mail, error)
	GetByID(ctx context.Context, id string) (*mail.Mail, error)
	Create(ctx context.Context, doc *mail.Mail) (*mail.Mail, error)
	Update(ctx context.Context, filter crud.Filter, data any) (*mail.Mail, error)
	Delete(ctx context.Context, filter crud.Filter) (*mail.Mail, error)
	Count(ctx context.Context, filter crud.Filter) (int64, error)
	DeleteMany(ctx context.Context, filter crud.Filter) error
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error)
}

// BlobStore keeps attachment contents.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// Outbox receives the ids of newly queued mail.
type Outbox interface {
	Enqueue(ctx context.Context, id string) error
}

// Option configures a Service.
type Option func(*Service)

// WithBlobStore enables attachments.
func WithBlobStore(b BlobStore) Option { return func(s *Service) { s.blobs = b } }

// WithOutbox sets where new mail ids are published. A nil outbox keeps the
// default, which discards ids.
func WithOutbox(o Outbox) Option {
	return func(s *Service) {
		if o != nil {
			s.outbox = o
		}
	}
}

// WithURLExpiry sets the lifetime of presigned attachment URLs.
func WithURLExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urlExpiry = d
		}
	}
}

// WithClock overrides the time source for sentAt.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service implements the mail use cases on top of the generic CRUD store.
type Service struct {
	store     Store
	blobs     BlobStore
	outbox    Outbox
	urlExpiry time.Duration
	now       func() time.Time
}

// New returns a Service. The store is required; blobs and outbox are optional.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("mail store is required")
	}
	s := &Service{store: store, outbox: outbox.Nop{}, urlExpiry: DefaultURLExpiry, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// AttachmentsEnabled reports whether a blob store is configured.
func (s *Service) AttachmentsEnabled() bool { return s.blobs != nil }

// Query selects a page of mail.
type Query struct {
	Status mail.Status
	To     string
	From   string
	crud.ListOptions
}

// Page is one page of List results.
type Page struct {
	Items []mail.Mail `json:"items"`
	Page  int64       `json:"page"`
	Limit int64       `json:"limit"`
	Total int64       `json:"total"`
}

// Filter builds the store filter for q.
func (q Query) Filter() crud.Filter {
	f := crud.Filter{}
	if q.Status != "" {
		f["status"] = q.Status
	}
	if q.To != "" {
		f["to"] = q.To
	}
	if q.From != "" {
		f["from"] = q.From
	}
	return f
}

// List returns the page of mail matching q along with the total match count.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", crud.ErrValidation, q.Status)
	}
	opts := q.ListOptions.Normalize()
	filter := q.Filter()
	items, err := s.store.GetAll(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Page: opts.Page, Limit: opts.Limit, Total: total}, nil
}

// Get returns the mail with the given id.
func (s *Service) Get(ctx context.Context, id string) (*mail.Mail, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// CreateInput is the client supplied part of a new mail.
type CreateInput struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// Create stores a queued mail and publishes its id on the outbox. A failed
// publish is logged; the mail stays queued and is returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (*mail.Mail, error) {
	m, err := s.store.Create(ctx, &mail.Mail{
		From:    strings.TrimSpace(in.From),
		To:      in.To,
		Cc:      in.Cc,
		Bcc:     in.Bcc,
		Subject: in.Subject,
		Text:    in.Text,
		HTML:    in.HTML,
		Status:  mail.StatusQueued,
	})
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Enqueue(ctx, m.ID.Hex()); err != nil {
		metrics.OutboxEnqueueFailures.Inc()
		logger.Warnf("mail %s: outbox enqueue failed: %v", m.ID.Hex(), err)
	}
	return m, nil
}

// UpdateInput holds the fields a PATCH may change. Nil means unchanged.
type UpdateInput struct {
	To      *[]string    `json:"to"`
	Cc      *[]string    `json:"cc"`
	Bcc     *[]string    `json:"bcc"`
	Subject *string      `json:"subject"`
	Text    *string      `json:"text"`
	HTML    *string      `json:"html"`
	Status  *mail.Status `json:"status"`
	Error   *string      `json:"error"`
}

func (in UpdateInput) set(now time.Time) (bson.M, error) {
	set := bson.M{}
	var errs []error
	addrs := func(field string, v *[]string) {
		if v == nil {
			return
		}
		if err := mail.ValidateAddresses(field, *v); err != nil {
			errs = append(errs, err)
		}
		set[field] = *v
	}
	addrs("to", in.To)
	addrs("cc", in.Cc)
	addrs("bcc", in.Bcc)
	if in.To != nil && len(*in.To) == 0 {
		errs = append(errs, errors.New("to: at least one recipient is required"))
	}
	if in.Subject != nil {
		if strings.TrimSpace(*in.Subject) == "" {
			errs = append(errs, errors.New("subject is required"))
		}
		set["subject"] = *in.Subject
	}
	if in.Text != nil {
		set["text"] = *in.Text
	}
	if in.HTML != nil {
		set["html"] = *in.HTML
	}
	if in.Error != nil {
		set["error"] = *in.Error
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			errs = append(errs, fmt.Errorf("status %q is not one of queued, sent, failed", *in.Status))
		}
		set["status"] = *in.Status
		if *in.Status == mail.StatusSent {
			set["sentAt"] = now
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %v", crud.ErrValidation, err)
	}
	return set, nil
}

// Update applies in to the mail and returns its new state. Marking a mail as
// sent stamps sentAt.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*mail.Mail, error) {
	oid, err := crud.ParseID(id)
	if err != nil {
		return nil, err
	}
	set, err := in.set(s.now())
	if err != nil {
		return nil, err
	}
	m, err := s.store.Update(ctx, crud.Filter{"_id": oid}, set)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// Delete removes the mail and, best effort, its attachment blobs.
func (s *Service) Delete(ctx context.Context, id string) (*mail.Mail, error) {
	oid, err := crud.ParseID(id)
	if err != nil {
		return nil, err
	}
	m, err := s.store.Delete(ctx, crud.Filter{"_id": oid})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	s.removeBlobs(ctx, m.Attachments)
	return m, nil
}

// Purge removes every mail in the given status and returns how many matched.
// The count is taken before the delete, so writes racing the purge can make
// it differ from the number actually removed.
func (s *Service) Purge(ctx context.Context, status mail.Status) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", crud.ErrValidation, status)
	}
	filter := crud.Filter{"status": status}
	n, err := s.store.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.store.DeleteMany(ctx, filter); err != nil {
		return 0, err
	}
	return n, nil
}

// Stats counts mail per status. Every known status is present, zero when
// no mail has it, and "total" sums them.
func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	rows, err := s.store.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{
		string(mail.StatusQueued): 0,
		string(mail.StatusSent):   0,
		string(mail.StatusFailed): 0,
		"total":                   0,
	}
	for _, row := range rows {
		status, _ := row["_id"].(string)
		n := toInt64(row["count"])
		if status != "" {
			out[status] += n
		}
		out["total"] += n
	}
	return out, nil
}

// AddAttachment uploads r and records it on the mail.
func (s *Service) AddAttachment(ctx context.Context, id, name string, r io.Reader, size int64, contentType string) (*mail.Mail, error) {
	if s.blobs == nil {
		return nil, ErrAttachmentsDisabled
	}
	name = cleanName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: attachment name is required", crud.ErrValidation)
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, exists := m.Attachment(name); exists {
		return nil, fmt.Errorf("%w: attachment %q already exists", crud.ErrValidation, name)
	}
	att := mail.Attachment{
		Name:        name,
		Key:         m.ID.Hex() + "/" + uuid.NewString() + "/" + name,
		Size:        size,
		ContentType: contentType,
	}
	if err := s.blobs.Upload(ctx, att.Key, r, size, contentType); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	updated, err := s.store.Update(ctx, crud.Filter{"_id": m.ID}, bson.D{{Key: "$push", Value: bson.D{{Key: "attachments", Value: att}}}})
	if err != nil || updated == nil {
		s.removeBlobs(ctx, []mail.Attachment{att})
		if err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return updated, nil
}

// AttachmentURL returns a presigned download URL for the named attachment.
func (s *Service) AttachmentURL(ctx context.Context, id, name string) (string, error) {
	if s.blobs == nil {
		return "", ErrAttachmentsDisabled
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	att, ok := m.Attachment(name)
	if !ok {
		return "", ErrNotFound
	}
	return s.blobs.PresignedURL(ctx, att.Key, s.urlExpiry)
}

func (s *Service) removeBlobs(ctx context.Context, atts []mail.Attachment) {
	if s.blobs == nil {
		return
	}
	for _, a := range atts {
		if err := s.blobs.Remove(ctx, a.Key); err != nil {
			logger.Warnf("remove attachment %s: %v", a.Key, err)
		}
	}
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
