package handler

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// 部品一覧のページング既定値。
const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 100000
)

// partQuery は部品一覧のクエリパラメーターを解釈した結果。
type partQuery struct {
	page     int
	pageSize int
	search   string
	brandID  int64
	lowStock bool
	availMax *int
	priceMin *float64
	priceMax *float64
	ordering string
}

// parsePartQuery はクエリを検証する。不正な値はまとめてValidationエラーにする。
func parsePartQuery(v url.Values) (partQuery, error) {
	q := partQuery{
		page:     1,
		pageSize: defaultPageSize,
		search:   strings.TrimSpace(v.Get("search")),
		lowStock: v.Get("low_stock") == "true",
		ordering: v.Get("ordering"),
	}
	var issues []model.FieldIssue
	invalid := func(path, msg string) {
		issues = append(issues, model.FieldIssue{Path: path, Message: msg})
	}

	if raw := v.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPage {
			invalid("page", "Must be an integer between 1 and "+strconv.Itoa(maxPage))
		} else {
			q.page = n
		}
	}
	if raw := v.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			invalid("page_size", "Must be an integer between 1 and "+strconv.Itoa(maxPageSize))
		} else {
			q.pageSize = n
		}
	}
	if raw := v.Get("brand"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			invalid("brand", "Must be a positive integer")
		} else {
			q.brandID = id
		}
	}
	if raw := v.Get("available_max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			invalid("available_max", "Must be a non-negative integer")
		} else {
			q.availMax = &n
		}
	}
	q.priceMin = parsePriceParam(v, "price_min", invalid)
	q.priceMax = parsePriceParam(v, "price_max", invalid)

	if len(issues) > 0 {
		return q, model.NewValidationError("Invalid query parameters", issues)
	}
	return q, nil
}

func parsePriceParam(v url.Values, name string, invalid func(path, msg string)) *float64 {
	raw := v.Get(name)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		invalid(name, "Must be a non-negative number")
		return nil
	}
	return &f
}

// filter はリポジトリに渡す絞り込み条件を返す。
func (q partQuery) filter() model.PartFilter {
	return model.PartFilter{
		Search:       q.search,
		BrandID:      q.brandID,
		LowStock:     q.lowStock,
		AvailableMax: q.availMax,
		PriceMin:     q.priceMin,
		PriceMax:     q.priceMax,
		Ordering:     q.ordering,
		Limit:        q.pageSize,
		Offset:       (q.page - 1) * q.pageSize,
	}
}

// pageLink は現在のクエリを保ったままpageだけを差し替えた相対URLを返す。
func pageLink(u *url.URL, page int) *string {
	v := u.Query()
	v.Set("page", strconv.Itoa(page))
	link := u.Path + "?" + v.Encode()
	return &link
}
