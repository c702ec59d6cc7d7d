// Package crud provides BaseService, a generic repository over one MongoDB
// collection. Every method is a single, directly delegated round trip; the
// service holds no state besides the collection handle.
package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Filter selects documents: field name to match condition.
type Filter = bson.M

// Validator is implemented by documents that check their own schema before insert.
type Validator interface {
	Validate() error
}

// Option configures a BaseService.
type Option func(*settings)

type settings struct {
	timestamps bool
	now        func() time.Time
}

// WithTimestamps maintains createdAt on insert and updatedAt on insert and update.
func WithTimestamps() Option {
	return func(s *settings) { s.timestamps = true }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// BaseService exposes typed find/create/update/delete/count/aggregate
// operations for documents of type T stored in one collection.
type BaseService[T any] struct {
	col *mongo.Collection
	settings
}

// New returns a BaseService bound to col.
func New[T any](col *mongo.Collection, opts ...Option) *BaseService[T] {
	s := &BaseService[T]{col: col, settings: settings{now: time.Now}}
	for _, o := range opts {
		o(&s.settings)
	}
	return s
}

// Collection returns the underlying collection handle.
func (s *BaseService[T]) Collection() *mongo.Collection { return s.col }

// GetAll returns the matches of filter, skipping (page-1)*limit documents and
// returning at most limit, ordered per opts.Sort (natural order when empty).
// An empty match set yields an empty slice.
func (s *BaseService[T]) GetAll(ctx context.Context, filter Filter, opts ListOptions) ([]T, error) {
	opts = opts.Normalize()
	fo := options.Find().SetSkip(opts.Skip()).SetLimit(opts.Limit)
	if sort := opts.SortDoc(); sort != nil {
		fo.SetSort(sort)
	}
	cur, err := s.col.Find(ctx, orEmpty(filter), fo)
	if err != nil {
		return nil, wrap("getAll", err)
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("getAll", err)
	}
	return out, nil
}

// GetOne returns the first match, or nil when nothing matches.
func (s *BaseService[T]) GetOne(ctx context.Context, filter Filter) (*T, error) {
	var out T
	err := s.col.FindOne(ctx, orEmpty(filter)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("getOne", err)
	}
	return &out, nil
}

// GetByID returns the document with the given hex ObjectID, or nil when absent.
func (s *BaseService[T]) GetByID(ctx context.Context, id string) (*T, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.GetOne(ctx, Filter{"_id": oid})
}

// Create inserts data and returns the persisted document, including the
// generated _id and timestamps.
func (s *BaseService[T]) Create(ctx context.Context, data *T) (*T, error) {
	if data == nil {
		return nil, &Error{Op: "create", Kind: ErrValidation, Err: errors.New("nil document")}
	}
	if v, ok := any(data).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &Error{Op: "create", Kind: ErrValidation, Err: err}
		}
	}
	doc, err := toDoc(data)
	if err != nil {
		return nil, &Error{Op: "create", Kind: ErrValidation, Err: err}
	}
	if id, ok := lookup(doc, "_id"); !ok {
		doc = append(bson.D{{Key: "_id", Value: primitive.NewObjectID()}}, doc...)
	} else if isZeroID(id) {
		doc = put(doc, "_id", primitive.NewObjectID())
	}
	if s.timestamps {
		now := primitive.NewDateTimeFromTime(s.now())
		doc = put(doc, "createdAt", now)
		doc = put(doc, "updatedAt", now)
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return nil, wrap("create", err)
	}
	var out T
	if err := fromDoc(doc, &out); err != nil {
		return nil, fmt.Errorf("create: decode: %w", err)
	}
	return &out, nil
}

// Update applies data to the first match and returns the document as it is
// after the update, or nil when nothing matches. data is either a partial
// document (struct, bson.M, bson.D) merged with $set, or an update document
// whose keys are all $-operators, passed through as is.
//
// A struct is encoded as a whole: fields without omitempty are $set even
// when zero. Use omitempty tags (or a bson.M) to send only the changed fields.
func (s *BaseService[T]) Update(ctx context.Context, filter Filter, data any) (*T, error) {
	update, err := s.updateDoc(data)
	if err != nil {
		return nil, &Error{Op: "update", Kind: ErrValidation, Err: err}
	}
	if len(update) == 0 {
		return s.GetOne(ctx, filter)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out T
	err = s.col.FindOneAndUpdate(ctx, orEmpty(filter), update, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("update", err)
	}
	return &out, nil
}

// Delete removes the first match and returns it, or nil when nothing matches.
func (s *BaseService[T]) Delete(ctx context.Context, filter Filter) (*T, error) {
	var out T
	err := s.col.FindOneAndDelete(ctx, orEmpty(filter)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("delete", err)
	}
	return &out, nil
}

// Count returns the number of documents matching filter.
func (s *BaseService[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := s.col.CountDocuments(ctx, orEmpty(filter))
	if err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// DeleteMany removes every match. Zero matches is not an error.
func (s *BaseService[T]) DeleteMany(ctx context.Context, filter Filter) error {
	if _, err := s.col.DeleteMany(ctx, orEmpty(filter)); err != nil {
		return wrap("deleteMany", err)
	}
	return nil
}

// Aggregate runs pipeline unmodified and returns the result documents.
func (s *BaseService[T]) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrap("aggregate", err)
	}
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("aggregate", err)
	}
	return out, nil
}

// ParseID converts a hex string into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, &Error{Op: "getById", Kind: ErrInvalidIdentifier, Err: err}
	}
	return oid, nil
}

func (s *BaseService[T]) updateDoc(data any) (bson.D, error) {
	if data == nil {
		return nil, errors.New("nil update")
	}
	doc, err := toDoc(data)
	if err != nil {
		return nil, err
	}
	var update bson.D
	if isOperatorDoc(doc) {
		update = doc
	} else {
		fields := make(bson.D, 0, len(doc))
		for _, e := range doc {
			if e.Key != "_id" {
				fields = append(fields, e)
			}
		}
		if len(fields) > 0 {
			update = bson.D{{Key: "$set", Value: fields}}
		}
	}
	if s.timestamps && len(update) > 0 {
		update = touch(update, primitive.NewDateTimeFromTime(s.now()))
	}
	return update, nil
}

// touch adds updatedAt to the $set stage, creating it when missing.
func touch(update bson.D, now primitive.DateTime) bson.D {
	for i, e := range update {
		if e.Key != "$set" {
			continue
		}
		switch set := e.Value.(type) {
		case bson.D:
			update[i].Value = put(set, "updatedAt", now)
		case bson.M:
			set["updatedAt"] = now
		}
		return update
	}
	return append(update, bson.E{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}})
}

func isOperatorDoc(doc bson.D) bool {
	if len(doc) == 0 {
		return false
	}
	for _, e := range doc {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

// isZeroID reports whether an encoded _id was left unset by the caller, as
// happens with an ObjectID field tagged without omitempty.
func isZeroID(v any) bool {
	switch id := v.(type) {
	case nil:
		return true
	case primitive.ObjectID:
		return id.IsZero()
	}
	return false
}

func orEmpty(f Filter) Filter {
	if f == nil {
		return Filter{}
	}
	return f
}

func toDoc(v any) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

func fromDoc(doc bson.D, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func put(doc bson.D, key string, value any) bson.D {
	for i, e := range doc {
		if e.Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}
