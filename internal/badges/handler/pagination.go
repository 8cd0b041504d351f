package handler

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

const (
	headerTotalCount = "X-Total-Count"
	headerLink       = "Link"

	// maxOffset keeps offset+limit representable.
	maxOffset = math.MaxInt - models.MaxPageLimit
)

// parseListingQuery reads limit, offset, since and the address filters from
// the query string. Any malformed value is an invalid_query_parameter error.
func parseListingQuery(values url.Values) (models.ListingQuery, error) {
	q := models.ListingQuery{Limit: models.DefaultPageLimit}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > models.MaxPageLimit {
			return models.ListingQuery{}, invalidQuery("limit must be an integer between 1 and " + strconv.Itoa(models.MaxPageLimit))
		}
		q.Limit = limit
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 || offset > maxOffset {
			return models.ListingQuery{}, invalidQuery("offset must be an integer between 0 and " + strconv.Itoa(maxOffset))
		}
		q.Offset = offset
	}
	if raw := values.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.ListingQuery{}, invalidQuery("since must be an RFC 3339 timestamp")
		}
		q.Since = since
	}

	for _, f := range []struct {
		name string
		dst  *domain.Address
	}{
		{"issuer", &q.Issuer},
		{"achievement", &q.Achievement},
		{"recipient", &q.Recipient},
	} {
		raw := values.Get(f.name)
		if raw == "" {
			continue
		}
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			return models.ListingQuery{}, invalidQuery(f.name + " must be a base58 address")
		}
		*f.dst = addr
	}
	return q, nil
}

func invalidQuery(msg string) error {
	return dErrors.New(dErrors.CodeInvalidQueryParameter, msg)
}

// writePaginationHeaders sets X-Total-Count and an RFC 8288 Link header with
// first and last, plus next and prev when the page is not the whole set.
func writePaginationHeaders(w http.ResponseWriter, r *http.Request, q models.ListingQuery, total int) {
	w.Header().Set(headerTotalCount, strconv.Itoa(total))

	last := 0
	if total > 0 {
		last = ((total - 1) / q.Limit) * q.Limit
	}
	links := []string{
		pageLink(r, q.Limit, 0, "first"),
		pageLink(r, q.Limit, last, "last"),
	}
	if q.Offset < total-q.Limit {
		links = append(links, pageLink(r, q.Limit, q.Offset+q.Limit, "next"))
	}
	if q.Offset > 0 {
		// past the end, prev points back at the last real page
		prev := min(max(q.Offset-q.Limit, 0), last)
		links = append(links, pageLink(r, q.Limit, prev, "prev"))
	}
	w.Header().Set(headerLink, strings.Join(links, ", "))
}

func pageLink(r *http.Request, limit, offset int, rel string) string {
	values := r.URL.Query()
	values.Set("limit", strconv.Itoa(limit))
	values.Set("offset", strconv.Itoa(offset))

	u := url.URL{Path: r.URL.Path, RawQuery: values.Encode()}
	if r.Host != "" {
		u.Host = r.Host
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return "<" + u.String() + `>; rel="` + rel + `"`
}
