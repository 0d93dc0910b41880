// Package channel holds the per-transport delivery adapters. Each adapter
// renders a Message into its native payload once and sends that payload to
// an endpoint.
package channel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Fact is a name/value row on a chat card.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is a link button on a chat card or push notification.
type Action struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Message is the channel-neutral notification content.
type Message struct {
	ID           string                  `json:"id"`
	Type         domain.NotificationType `json:"type"`
	Priority     domain.Priority         `json:"priority"`
	Title        string                  `json:"title"`
	Body         string                  `json:"body"`
	URL          string                  `json:"url,omitempty"`
	Icon         string                  `json:"icon,omitempty"`
	Badge        string                  `json:"badge,omitempty"`
	Image        string                  `json:"image,omitempty"`
	Tag          string                  `json:"tag,omitempty"`
	Data         map[string]any          `json:"data,omitempty"`
	Facts        []Fact                  `json:"facts,omitempty"`
	Actions      []Action                `json:"actions,omitempty"`
	RichCard     bool                    `json:"rich_card,omitempty"`
	TemplateVars map[string]string       `json:"template_vars,omitempty"`
	SentAt       time.Time               `json:"sent_at"`
}

// Result is the uniform outcome of one Send.
type Result struct {
	Success    bool
	MessageID  string
	StatusCode int
	Err        error
	// Permanent marks an endpoint that will never accept a delivery again.
	Permanent bool
	Latency   time.Duration
}

// Adapter is one delivery transport.
type Adapter interface {
	Channel() domain.ChannelType
	// Validate checks the endpoint synchronously, before any network call.
	Validate(ep domain.Endpoint) error
	BuildPayload(msg Message) ([]byte, error)
	Send(ctx context.Context, ep domain.Endpoint, payload []byte) Result
}

// Registry selects the adapter for a channel type.
type Registry struct {
	adapters map[domain.ChannelType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.ChannelType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Channel()] = a
}

func (r *Registry) Get(ch domain.ChannelType) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for channel %q", domain.ErrUnsupportedOperation, ch)
	}
	return a, nil
}

// Channels lists registered channel types in a stable order.
func (r *Registry) Channels() []domain.ChannelType {
	out := make([]domain.ChannelType, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func failure(err error, permanent bool, status int, latency time.Duration) Result {
	return Result{Err: err, Permanent: permanent, StatusCode: status, Latency: latency}
}
