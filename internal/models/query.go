package models

import (
	"net/url"
	"strconv"
)

// PlanQuery holds the list filters of the plans table
type PlanQuery struct {
	Page            int    `json:"page"`
	Limit           int    `json:"limit"`
	SortBy          string `json:"sortBy"`
	SortOrder       string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Search          string `json:"search"`
	PaymentType     string `json:"paymentType"`
	PaymentMode     string `json:"paymentMode" validate:"omitempty,oneof=one_time installments both"`
	Status          string `json:"status" validate:"omitempty,oneof=active inactive"`
	MinAmount       string `json:"minAmount" validate:"omitempty,numeric"`
	MaxAmount       string `json:"maxAmount" validate:"omitempty,numeric"`
	HasInstallments string `json:"hasInstallments" validate:"omitempty,oneof=true false"`
}

// DefaultPlanQuery matches the first page of the plans table
func DefaultPlanQuery() PlanQuery {
	return PlanQuery{Page: 1, Limit: 10, SortBy: "createdAt", SortOrder: "desc"}
}

// Values encodes the non-empty filters as URL query parameters
func (q PlanQuery) Values() url.Values {
	v := url.Values{}
	setInt(v, "page", q.Page)
	setInt(v, "limit", q.Limit)
	setString(v, "sortBy", q.SortBy)
	setString(v, "sortOrder", q.SortOrder)
	setString(v, "search", q.Search)
	setString(v, "paymentType", q.PaymentType)
	setString(v, "paymentMode", q.PaymentMode)
	setString(v, "status", q.Status)
	setString(v, "minAmount", q.MinAmount)
	setString(v, "maxAmount", q.MaxAmount)
	setString(v, "hasInstallments", q.HasInstallments)
	return v
}

// PlanPage is one page of the plans table
type PlanPage struct {
	Plans      []Plan `json:"data"`
	TotalPages int    `json:"totalPages"`
}

// EnrollmentQuery holds the filters of a plan's enrollment list
type EnrollmentQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=pending enrolled rejected cancelled"`
	Search string `json:"search"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

// Values encodes the enrollment filters; page and limit are always sent
func (q EnrollmentQuery) Values() url.Values {
	v := url.Values{}
	v.Set("status", q.Status)
	v.Set("search", q.Search)
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))
	return v
}

func setString(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setInt(v url.Values, key string, val int) {
	if val > 0 {
		v.Set(key, strconv.Itoa(val))
	}
}
