package extract

import (
	"errors"
	"sync"

	"tixwatch/internal/fetch"
	logx "tixwatch/pkg/logx"
)

// ErrUnsupportedContent is returned by a rule that recognized the URL but not
// the content shape. The registry logs it as a warning and reports no match.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Input is what a rule sees: the target's parsing configuration plus the page.
type Input struct {
	URL             string
	IdentifierType  string // normalized, see NormalizeType
	IdentifierValue string
	Page            fetch.Page
}

// Rule is one vendor variant.
type Rule struct {
	Name  string
	Match func(in Input) bool
	Parse func(in Input) (*Result, error)
}

// Registry checks rules in order; the first matching rule parses the page.
type Registry struct {
	log logx.Logger

	mu    sync.RWMutex
	rules []Rule
}

func NewRegistry(log logx.Logger, rules ...Rule) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, rules: append([]Rule(nil), rules...)}
}

// Default returns the registry with the built-in TicketPlus rules.
func Default(log logx.Logger) *Registry {
	return NewRegistry(log, TicketPlusAPI(), TicketPlusHTML())
}

// Register appends a rule after the existing ones.
func (r *Registry) Register(rule Rule) {
	if rule.Match == nil || rule.Parse == nil {
		return
	}
	r.mu.Lock()
	r.rules = append(r.rules, rule)
	r.mu.Unlock()
}

// Names lists rule names in evaluation order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Name)
	}
	return out
}

// Extract returns (nil, false) when no rule applies or the matching rule could
// not parse the page. Neither case is an error for the caller.
func (r *Registry) Extract(in Input) (*Result, bool) {
	in.IdentifierType = NormalizeType(in.IdentifierType)

	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Match(in) {
			continue
		}
		res, err := rule.Parse(in)
		if err != nil {
			r.log.Warn("extract failed",
				logx.String("rule", rule.Name),
				logx.String("url", in.URL),
				logx.String("content_type", in.Page.ContentType),
				logx.Err(err),
			)
			return nil, false
		}
		if res == nil {
			return nil, false
		}
		r.log.Info("extracted",
			logx.String("rule", rule.Name),
			logx.String("url", in.URL),
			logx.String("event", res.EventName),
			logx.Int("areas", len(res.Seats)),
		)
		return res, true
	}

	r.log.Debug("no extractor matched",
		logx.String("url", in.URL),
		logx.String("identifier_type", in.IdentifierType),
		logx.String("content_type", in.Page.ContentType),
	)
	return nil, false
}
