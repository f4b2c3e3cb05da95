package event

import (
	"time"
)

// TimeLayout is the ISO-8601 layout used for the wire "time" field.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FocusFunc reports whether the host had input focus. A nil result means the
// host has no notion of focus and is_active is omitted.
type FocusFunc func() *bool

// ClientInfo describes the emitting application. It is copied into the wire
// body of exception records.
type ClientInfo struct {
	Name    string
	Version string
	System  string
}

// Record is one event occurrence. It is immutable after construction: closing
// a durable event yields a new Record.
type Record struct {
	typ       Type
	durable   bool
	payload   map[string]any
	createdAt time.Time
	closedAt  time.Time
	active    *bool
	client    ClientInfo
	clock     func() time.Time
}

type options struct {
	clock  func() time.Time
	focus  FocusFunc
	client ClientInfo
}

// Option configures New.
type Option func(*options)

// WithClock overrides time.Now for creation and duration timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithFocus sets the focus query captured into is_active.
func WithFocus(f FocusFunc) Option {
	return func(o *options) { o.focus = f }
}

// WithClient attaches the emitting client's description.
func WithClient(c ClientInfo) Option {
	return func(o *options) { o.client = c }
}

// New is the event factory. It applies the type's payload rule and the
// serializability check, and returns a Record only when both pass.
func New(t Type, durable bool, payload map[string]any, opts ...Option) (Record, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	if err := checkSerializable(t, payload); err != nil {
		return Record{}, err
	}
	p := clonePayload(payload)
	if err := Validate(t, p); err != nil {
		return Record{}, err
	}

	r := Record{
		typ:       t,
		durable:   durable,
		payload:   p,
		createdAt: o.clock(),
		client:    o.client,
		clock:     o.clock,
	}
	if o.focus != nil {
		if a := o.focus(); a != nil {
			v := *a
			r.active = &v
		}
	}
	return r, nil
}

func (r Record) Type() Type           { return r.typ }
func (r Record) Durable() bool        { return r.durable }
func (r Record) CreatedAt() time.Time { return r.createdAt }

// ClosedAt is zero until a durable record has been closed.
func (r Record) ClosedAt() time.Time { return r.closedAt }

// Active returns the focus state at creation time and whether it was known.
func (r Record) Active() (bool, bool) {
	if r.active == nil {
		return false, false
	}
	return *r.active, true
}

// Payload returns a copy of the record's payload.
func (r Record) Payload() map[string]any { return clonePayload(r.payload) }

// Body is the wire form of a Record. Exception fields are only set for
// SendException records.
type Body struct {
	Name     string `json:"name"`
	Time     string `json:"time"`
	IsActive *bool  `json:"is_active,omitempty"`
	ClientID any    `json:"client_id,omitempty"`
	JobID    any    `json:"job_id,omitempty"`
	TaskID   any    `json:"task_id,omitempty"`

	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	Line     any    `json:"line,omitempty"`
	Column   any    `json:"column,omitempty"`
	Stack    string `json:"stack,omitempty"`
	System   string `json:"system,omitempty"`
	Client   string `json:"client,omitempty"`
	Version  string `json:"version,omitempty"`

	Payload map[string]any `json:"payload"`
}

// Body projects the record into its wire form. It has no side effects and
// may be called any number of times.
func (r Record) Body() Body {
	p := clonePayload(r.payload)
	b := Body{
		Name: string(r.typ),
		Time: r.createdAt.UTC().Format(TimeLayout),
	}
	if r.active != nil {
		v := *r.active
		b.IsActive = &v
	}
	b.ClientID = lift(p, KeyClientID)
	b.JobID = lift(p, KeyJobID)
	b.TaskID = lift(p, KeyTaskID)

	if r.typ == SendException {
		b.Message, _ = lift(p, "message").(string)
		b.Filename, _ = lift(p, "filename").(string)
		b.Line = lift(p, "line")
		b.Column = lift(p, "column")
		b.Stack, _ = lift(p, "stack").(string)
		b.System = r.client.System
		b.Client = r.client.Name
		b.Version = r.client.Version
	}
	b.Payload = p
	return b
}

func lift(p map[string]any, key string) any {
	v, ok := p[key]
	if !ok {
		return nil
	}
	delete(p, key)
	return v
}

// close builds the closed form of r. duration is written first so that
// caller-supplied fields can overwrite it.
func (r Record) close(extra map[string]any) (Record, error) {
	now := r.clock()
	ms := now.Sub(r.createdAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	p := clonePayload(r.payload)
	p[KeyDuration] = ms
	for k, v := range extra {
		p[k] = v
	}
	if err := checkSerializable(r.typ, p); err != nil {
		return Record{}, err
	}
	closed := r
	closed.payload = p
	closed.closedAt = now
	return closed, nil
}
