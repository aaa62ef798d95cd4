package usecase

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/catalog"
)

// pageBatch is the decoded and normalized content of one catalog page
type pageBatch struct {
	total    int
	records  int
	products []*domain.Product
	skipped  int
}

// pager knows how to address and decode the pages of one dialect
type pager interface {
	dialect() domain.Dialect
	pageSize() int
	parallelism() int
	// requestURL addresses the request with 0-based index i
	requestURL(i int) (string, error)
	// decode fails with a structural error when the page shape is unexpected;
	// malformed records are skipped, not failed.
	decode(body []byte, firstIndex int) (*pageBatch, error)
}

type dialectAPager struct {
	base   string
	origin string
	size   int
	limit  int
	logger zerolog.Logger
}

func (p *dialectAPager) dialect() domain.Dialect { return domain.DialectA }
func (p *dialectAPager) pageSize() int           { return p.size }
func (p *dialectAPager) parallelism() int        { return p.limit }

func (p *dialectAPager) requestURL(i int) (string, error) {
	return catalog.BuildDialectAURL(p.base, i*p.size, p.size)
}

func (p *dialectAPager) decode(body []byte, firstIndex int) (*pageBatch, error) {
	page, err := catalog.DecodeDialectAPage(body)
	if err != nil {
		return nil, err
	}

	batch := &pageBatch{total: page.Total, records: len(page.Records)}
	for i, rec := range page.Records {
		product, err := catalog.MapDialectA(rec, firstIndex+i, p.origin)
		if err != nil {
			logSkipped(p.logger, err)
			batch.skipped++
			continue
		}
		batch.products = append(batch.products, product)
	}
	return batch, nil
}

type dialectBPager struct {
	template      string
	origin        string
	size          int
	limit         int
	taxMultiplier float64
	logger        zerolog.Logger
}

func (p *dialectBPager) dialect() domain.Dialect { return domain.DialectB }
func (p *dialectBPager) pageSize() int           { return p.size }
func (p *dialectBPager) parallelism() int        { return p.limit }

func (p *dialectBPager) requestURL(i int) (string, error) {
	return catalog.BuildDialectBURL(p.template, i+1, p.size)
}

func (p *dialectBPager) decode(body []byte, firstIndex int) (*pageBatch, error) {
	page, err := catalog.DecodeDialectBPage(body)
	if err != nil {
		return nil, err
	}

	batch := &pageBatch{total: page.Total, records: len(page.Results)}
	for i, res := range page.Results {
		product, err := catalog.MapDialectB(res, firstIndex+i, p.origin, p.taxMultiplier)
		if err != nil {
			logSkipped(p.logger, err)
			batch.skipped++
			continue
		}
		batch.products = append(batch.products, product)
	}
	return batch, nil
}

func logSkipped(logger zerolog.Logger, err error) {
	var parseErr *domain.RecordParseError
	if errors.As(err, &parseErr) {
		logger.Warn().
			Str("source", string(parseErr.Source)).
			Int("index", parseErr.Index).
			Str("reason", parseErr.Reason).
			Msg("skipping malformed record")
		return
	}
	logger.Warn().Err(err).Msg("skipping record")
}
