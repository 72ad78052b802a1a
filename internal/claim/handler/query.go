package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
	domainerrors "claimstack/pkg/domain-errors"
	strutil "claimstack/pkg/platform/strings"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// parsePagination reads page/limit, clamping both into sane bounds.
func parsePagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func parseListQuery(r *http.Request) (models.ListFilter, int, int, error) {
	q := r.URL.Query()
	var filter models.ListFilter

	for _, raw := range strutil.DedupeAndTrim(q["status"]) {
		filter.Statuses = append(filter.Statuses, lifecycle.Status(raw))
	}
	filter.Search = q.Get("search")

	parseUUID := func(name string) (*uuid.UUID, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "invalid %s", name)
		}
		return &id, nil
	}

	var err error
	if filter.ClientID, err = parseUUID("clientId"); err != nil {
		return filter, 0, 0, err
	}
	if filter.AffiliateID, err = parseUUID("affiliateId"); err != nil {
		return filter, 0, 0, err
	}
	if filter.InsurerID, err = parseUUID("insurerId"); err != nil {
		return filter, 0, 0, err
	}

	parseDate := func(name string) (*time.Time, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			// Date-only values are accepted as well.
			t, err = time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, domainerrors.Newf(domainerrors.CodeValidation, "invalid %s", name)
			}
		}
		return &t, nil
	}
	if filter.DateFrom, err = parseDate("dateFrom"); err != nil {
		return filter, 0, 0, err
	}
	if filter.DateTo, err = parseDate("dateTo"); err != nil {
		return filter, 0, 0, err
	}
	if filter.DateTo != nil && filter.DateTo.Hour() == 0 && filter.DateTo.Minute() == 0 {
		// An inclusive date-only upper bound covers the whole day.
		end := filter.DateTo.Add(24*time.Hour - time.Nanosecond)
		filter.DateTo = &end
	}

	filter.SortBy = q.Get("sortBy")
	filter.SortDesc = q.Get("sortOrder") != "asc"

	page, limit := parsePagination(r)
	filter.Offset = (page - 1) * limit
	filter.Limit = limit
	return filter, page, limit, nil
}
