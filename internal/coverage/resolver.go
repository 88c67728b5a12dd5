// Package coverage selects the carrier and postal code for a destination
// from the organization's coverage reference table.
package coverage

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Source is where coverage rows are read from.
type Source interface {
	ListCoverage(ctx context.Context, orgID string) ([]models.Coverage, error)
}

// Cache stores serialized coverage tables per organization.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SelectionSource tells how the carrier was chosen.
type SelectionSource string

const (
	SourceExplicit SelectionSource = "explicit"
	SourcePriority SelectionSource = "priority"
	SourceCoverage SelectionSource = "coverage"
	SourceDefault  SelectionSource = "default"
)

// Selection is the outcome of ResolveCarrier.
type Selection struct {
	Carrier    shipping.Carrier
	PostalCode string
	Source     SelectionSource
	Matched    *models.Coverage
}

// Resolver implements carrier selection. It has no side effects besides
// populating the cache.
type Resolver struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *otelzap.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(source Source, cache Cache, ttl time.Duration, logger *otelzap.Logger) *Resolver {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{source: source, cache: cache, ttl: ttl, logger: logger}
}

// ResolveCarrier picks the carrier for a destination: the preferred carrier
// when given, else the matched row's priority carrier, else its first
// served carrier in precedence order, else the default carrier. A missing
// match or an unreadable coverage table degrades to the default carrier with
// an empty postal code; only a cancelled context is returned as an error.
func (r *Resolver) ResolveCarrier(ctx context.Context, orgID, city, department string, preferred shipping.Carrier) (Selection, error) {
	rows, err := r.load(ctx, orgID)
	if err != nil {
		if ctx.Err() != nil {
			return Selection{}, ctx.Err()
		}
		r.logger.Ctx(ctx).Warn("Coverage unavailable, using default carrier",
			zap.String("org_id", orgID), zap.Error(err))
	}

	match := Match(rows, city, department)
	return Select(match, preferred), nil
}

// Invalidate drops the cached coverage of an organization.
func (r *Resolver) Invalidate(ctx context.Context, orgID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, cacheKey(orgID))
}

func (r *Resolver) load(ctx context.Context, orgID string) ([]models.Coverage, error) {
	key := cacheKey(orgID)
	if r.cache != nil {
		b, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Ctx(ctx).Warn("Coverage cache read failed", zap.String("org_id", orgID), zap.Error(err))
		} else if ok {
			var rows []models.Coverage
			if err := json.Unmarshal(b, &rows); err == nil {
				return rows, nil
			}
		}
	}

	rows, err := r.source.ListCoverage(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if b, err := json.Marshal(rows); err == nil {
			if err := r.cache.Set(ctx, key, b, r.ttl); err != nil {
				r.logger.Ctx(ctx).Warn("Coverage cache write failed", zap.String("org_id", orgID), zap.Error(err))
			}
		}
	}
	return rows, nil
}

func cacheKey(orgID string) string {
	return "coverage:" + orgID
}

// Select applies the selection order to a matched row, which may be nil.
func Select(match *models.Coverage, preferred shipping.Carrier) Selection {
	sel := Selection{Carrier: shipping.DefaultCarrier, Source: SourceDefault, Matched: match}
	if match != nil {
		sel.PostalCode = match.PostalCode
	}

	switch {
	case preferred.IsKnown():
		sel.Carrier = preferred
		sel.Source = SourceExplicit
	case match == nil:
	case shipping.ParseCarrier(match.PriorityCarrier).IsKnown():
		sel.Carrier = shipping.ParseCarrier(match.PriorityCarrier)
		sel.Source = SourcePriority
	default:
		for _, c := range shipping.CarrierPrecedence {
			if match.Serves(c) {
				sel.Carrier = c
				sel.Source = SourceCoverage
				break
			}
		}
	}
	return sel
}

// Match finds the coverage row for a free-text city and department.
// Comparison ignores case, accents and punctuation. An exact municipality
// beats a partial one (either string containing the other), and a matching
// department breaks ties. Rows keep their order on equal scores.
func Match(rows []models.Coverage, city, department string) *models.Coverage {
	c := Normalize(city)
	if c == "" {
		return nil
	}
	d := Normalize(department)

	best, bestScore := -1, 0
	for i := range rows {
		m := Normalize(rows[i].Municipality)
		if m == "" {
			continue
		}

		score := 0
		switch {
		case m == c:
			score = 4
		case len(m) >= 3 && len(c) >= 3 && (strings.Contains(c, m) || strings.Contains(m, c)):
			score = 2
		default:
			continue
		}
		if d != "" {
			if rd := Normalize(rows[i].Department); rd != "" && (rd == d || strings.Contains(rd, d) || strings.Contains(d, rd)) {
				score++
			}
		}

		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return nil
	}
	row := rows[best]
	return &row
}

// Normalize lowercases s, strips accents and collapses punctuation and spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
