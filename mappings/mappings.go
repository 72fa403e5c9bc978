// Package mappings links device serial numbers to customers
package mappings

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/device-console/internal/utils"
)

// Mapping is one row of /get_customer_mappings/
type Mapping struct {
	SerialNumber     string        `json:"upiDeviceSerialNumber"`
	UniqueIdentifier string        `json:"uniqueIdentifier"`
	CustomerCode     string        `json:"customerCode"`
	CustomerName     string        `json:"customerName"`
	Company          string        `json:"company"`
	DeviceType       string        `json:"devicetype"`
	IsApproved       utils.FlexInt `json:"isApproved"`
	CreatedOn        string        `json:"createdOn"`
	ModifiedOn       string        `json:"modifiedOn"`
	LicenseURL       string        `json:"cLicenseURL"`
	VersionDetails   string        `json:"versionDetails"`
}

// Approved reports the backend approval flag
func (m Mapping) Approved() bool {
	return m.IsApproved == 1
}

// Form returns the editable fields of m
func (m Mapping) Form() Form {
	return Form{
		SerialNumber:     m.SerialNumber,
		UniqueIdentifier: m.UniqueIdentifier,
		CustomerCode:     m.CustomerCode,
		CustomerName:     m.CustomerName,
		Company:          m.Company,
		DeviceType:       m.DeviceType,
		LicenseURL:       m.LicenseURL,
		VersionDetails:   m.VersionDetails,
	}
}

// Form holds the fields posted when creating or updating a mapping. Every field is required.
type Form struct {
	SerialNumber     string
	UniqueIdentifier string
	CustomerCode     string
	CustomerName     string
	Company          string
	DeviceType       string
	LicenseURL       string
	VersionDetails   string
}

// FormFromValues reads a posted HTML form
func FormFromValues(v url.Values) Form {
	get := func(key string) string { return strings.TrimSpace(v.Get(key)) }
	return Form{
		SerialNumber:     get("serialnumber"),
		UniqueIdentifier: get("uniqueIdentifier"),
		CustomerCode:     get("customerCode"),
		CustomerName:     get("customerName"),
		Company:          get("company"),
		DeviceType:       get("devicetype"),
		LicenseURL:       get("licenseUrl"),
		VersionDetails:   get("versionDetails"),
	}
}

// Missing lists the backend names of empty fields
func (f Form) Missing() []string {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"serialnumber", f.SerialNumber},
		{"uniqueIdentifier", f.UniqueIdentifier},
		{"customerCode", f.CustomerCode},
		{"customerName", f.CustomerName},
		{"company", f.Company},
		{"devicetype", f.DeviceType},
		{"licenseUrl", f.LicenseURL},
		{"versionDetails", f.VersionDetails},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// createBody uses the key names of /create_customer_mapping/
func (f Form) createBody() map[string]string {
	return map[string]string{
		"serialnumber":     f.SerialNumber,
		"uniqueIdentifier": f.UniqueIdentifier,
		"customerCode":     f.CustomerCode,
		"customerName":     f.CustomerName,
		"company":          f.Company,
		"devicetype":       f.DeviceType,
		"licenseUrl":       f.LicenseURL,
		"versionDetails":   f.VersionDetails,
	}
}

// updateBody uses the key names of /update_customer_mapping/, which differ for the license
func (f Form) updateBody() map[string]string {
	body := f.createBody()
	delete(body, "licenseUrl")
	body["cLicenseURL"] = f.LicenseURL
	return body
}

// Approval filter values understood by the backend
const (
	ApprovedAny        = -1
	ApprovedNo         = 0
	ApprovedYes        = 1
	defaultFromDate    = "2020-01-01"
	defaultToDate      = "2099-12-31"
	defaultPageSize    = 10
	defaultSortIndex   = 1
	SortAscending      = 0
	SortDescending     = 1
	maxPageSize        = 100
	queryDateLayoutLen = len("2006-01-02")
)

// SortColumns names the columns the backend can sort by, keyed by sortingOrderIndex
var SortColumns = map[int]string{
	1: "Serial Number",
	2: "Customer Code",
	3: "Customer Name",
	4: "Company",
	5: "Device Type",
	6: "Created On",
}

// Query is the listing request. PageNumber is 0-based as the backend expects.
type Query struct {
	SerialNumber   string
	CustomerCode   string
	CustomerName   string
	Company        string
	DeviceType     string
	FromDate       string
	ToDate         string
	ApprovedStatus int
	SearchText     string
	PageNumber     int
	PageSize       int
	SortIndex      int
	SortDirection  int
}

// DefaultQuery returns the backend's own defaults
func DefaultQuery() Query {
	return Query{
		FromDate:       defaultFromDate,
		ToDate:         defaultToDate,
		ApprovedStatus: ApprovedAny,
		PageSize:       defaultPageSize,
		SortIndex:      defaultSortIndex,
		SortDirection:  SortAscending,
	}
}

// ParseQuery reads the console's listing page parameters. Invalid values fall back to defaults.
func ParseQuery(v url.Values) Query {
	q := DefaultQuery()
	q.SerialNumber = strings.TrimSpace(v.Get("serialNumber"))
	q.CustomerCode = strings.TrimSpace(v.Get("customerCode"))
	q.CustomerName = strings.TrimSpace(v.Get("customerName"))
	q.Company = strings.TrimSpace(v.Get("company"))
	q.DeviceType = strings.TrimSpace(v.Get("deviceType"))
	q.SearchText = strings.TrimSpace(v.Get("searchText"))

	if d := v.Get("fromDate"); len(d) == queryDateLayoutLen {
		q.FromDate = d
	}
	if d := v.Get("toDate"); len(d) == queryDateLayoutLen {
		q.ToDate = d
	}
	if n, err := strconv.Atoi(v.Get("approvedStatus")); err == nil && n >= ApprovedAny && n <= ApprovedYes {
		q.ApprovedStatus = n
	}
	if n, err := strconv.Atoi(v.Get("pageNumber")); err == nil && n >= 0 {
		q.PageNumber = n
	}
	if n, err := strconv.Atoi(v.Get("pageSize")); err == nil && n > 0 && n <= maxPageSize {
		q.PageSize = n
	}
	if n, err := strconv.Atoi(v.Get("sortingOrderIndex")); err == nil {
		if _, ok := SortColumns[n]; ok {
			q.SortIndex = n
		}
	}
	if n, err := strconv.Atoi(v.Get("sortingOrderDirection")); err == nil && (n == SortAscending || n == SortDescending) {
		q.SortDirection = n
	}
	return q
}

// Values encodes the query with the backend's parameter names
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("serialNumber", q.SerialNumber)
	set("customerCode", q.CustomerCode)
	set("customerName", q.CustomerName)
	set("company", q.Company)
	set("deviceType", q.DeviceType)
	set("searchText", q.SearchText)
	v.Set("fromDate", q.FromDate)
	v.Set("toDate", q.ToDate)
	v.Set("approvedStatus", strconv.Itoa(q.ApprovedStatus))
	v.Set("pageNumber", strconv.Itoa(q.PageNumber))
	v.Set("pageSize", strconv.Itoa(q.PageSize))
	v.Set("sortingOrderIndex", strconv.Itoa(q.SortIndex))
	v.Set("sortingOrderDirection", strconv.Itoa(q.SortDirection))
	return v
}

// WithPage returns a copy of q on another page
func (q Query) WithPage(page int) Query {
	q.PageNumber = max(page, 0)
	return q
}

// WithSort returns a copy of q sorted by index. Choosing the current column flips the direction.
func (q Query) WithSort(index int) Query {
	if q.SortIndex == index {
		q.SortDirection = SortAscending + SortDescending - q.SortDirection
	} else {
		q.SortIndex = index
		q.SortDirection = SortAscending
	}
	q.PageNumber = 0
	return q
}

// Result is one page of mappings
type Result struct {
	Rows       []Mapping
	TotalCount int
	Query      Query
}

// TotalPages is at least 1
func (r Result) TotalPages() int {
	if r.Query.PageSize <= 0 || r.TotalCount == 0 {
		return 1
	}
	return (r.TotalCount + r.Query.PageSize - 1) / r.Query.PageSize
}

func (r Result) HasPrev() bool { return r.Query.PageNumber > 0 }
func (r Result) HasNext() bool { return r.Query.PageNumber+1 < r.TotalPages() }
