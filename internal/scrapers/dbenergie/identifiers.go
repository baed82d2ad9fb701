package dbenergie

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"rapportage-downloader/internal/htmlutil"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	listPath = "/Connections/List/Index"
	editPath = "/Connections/Edit/Index"
)

// EAN is the external code of a meter.
type EAN string

func (e EAN) String() string {
	return string(e)
}

// ConnectionID is the portal's internal id of a meter connection.
type ConnectionID uint32

func (id ConnectionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Pair is an EAN together with the connection id it was verified against.
type Pair struct {
	EAN EAN
	ID  ConnectionID
}

// Resolution is the result of looking up an EAN on the connection list.
type Resolution struct {
	ID ConnectionID
	// Matches is the amount of rows on the first list page carrying the EAN.
	Matches int
}

// Ambiguous is true when the list showed more than one connection for the EAN, in which
// case the first one was picked.
func (r Resolution) Ambiguous() bool {
	return r.Matches > 1
}

// personalFilter is the list page's search state, the portal reads it from a cookie.
type personalFilter struct {
	MainPortalID            int    `json:"mainPortalId"`
	PortalID                int    `json:"portalId"`
	ProductID               []int  `json:"productId"`
	StatusID                []int  `json:"statusId"`
	ProviderID              int    `json:"providerId"`
	GridID                  int    `json:"gridId"`
	MeterReadingCompanyID   int    `json:"meterreadingcompanyId"`
	CustomerID              []int  `json:"customerId"`
	DepartmentID            []int  `json:"departmentId"`
	GvkvID                  int    `json:"gvkvId"`
	MonitoringTypesID       int    `json:"monitoringTypesId"`
	CharacteristicID        int    `json:"characteristicId"`
	ConsumptionCategoryID   int    `json:"consumptionCategoryId"`
	ConsumptionTypeID       []int  `json:"consumptionTypeId"`
	CostplaceID             int    `json:"costplaceId"`
	EnergyTaxationClusterID int    `json:"energytaxationclusterId"`
	ClassificationID        int    `json:"classificationId"`
	LabelID                 int    `json:"labelId"`
	ConnectionTypeID        int    `json:"ConnectionTypeId"`
	MeterNumber             string `json:"meterNumber"`
	EanSearch               EAN    `json:"eanSearch"`
	MeterDeleted            bool   `json:"meterDeleted"`
	ListMap                 bool   `json:"ListMap"`
	PageSize                int    `json:"pageSize"`
	PageNumber              int    `json:"pageNumber"`
	OrderBy                 string `json:"orderBy"`
	OrderDirection          string `json:"orderDirection"`
}

// personalFilterCookie renders the raw PersonalFilter cookie searching for ean.
func personalFilterCookie(account Account, ean EAN) (string, error) {
	customers := account.CustomerIDs
	if customers == nil {
		customers = []int{}
	}
	filter := personalFilter{
		MainPortalID:      account.MainPortalID,
		PortalID:          account.PortalID,
		ProductID:         []int{account.ProductID},
		StatusID:          []int{},
		CustomerID:        customers,
		DepartmentID:      []int{},
		ConsumptionTypeID: []int{},
		EanSearch:         ean,
		PageSize:          15,
		PageNumber:        1,
		OrderDirection:    "asc",
	}
	serialized, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	return "PersonalFilter=" + url.QueryEscape(string(serialized)), nil
}

// ajaxFalse is what the list page's own javascript sends in the request header.
var ajaxFalse = base64.StdEncoding.EncodeToString([]byte("false"))

// IDFromEAN searches the connection list for ean and returns the id of the first
// row showing exactly that EAN.
func (c *Client) IDFromEAN(ctx context.Context, ean EAN) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "resolver:IDFromEAN")
	defer span.End()
	span.SetAttributes(attribute.String("ean", string(ean)))

	resolveError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve id")
		c.tel.ReportWarning(report_resolver_id_from_ean, err, string(ean))
		return &ResolveError{Op: "id from ean", Err: err}
	}

	cookie, err := personalFilterCookie(c.account, ean)
	if err != nil {
		return Resolution{}, resolveError(fmt.Errorf("build filter: %w", err))
	}

	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.mu.RLock()
	defer c.mu.RUnlock()

	err = c.addCookie(cookie, c.resolve(listPath))
	if err != nil {
		return Resolution{}, resolveError(err)
	}
	res, err := c.get(ctx, listPath, map[string]string{"request": ajaxFalse}, nil)
	if err != nil {
		return Resolution{}, resolveError(fmt.Errorf("fetch: %w", err))
	}
	doc, err := htmlutil.Parse(res.Body())
	if err != nil {
		return Resolution{}, resolveError(fmt.Errorf("parse: %w", err))
	}

	resolution, err := idFromListPage(doc, ean)
	if err != nil {
		return Resolution{}, resolveError(err)
	}
	if resolution.Ambiguous() {
		c.tel.ReportWarning(
			report_resolver_id_from_ean,
			fmt.Errorf("ambiguous ean, picked the first of %d rows", resolution.Matches),
			string(ean),
			resolution.ID,
		)
	}
	return resolution, nil
}

func idFromListPage(doc *goquery.Document, ean EAN) (Resolution, error) {
	var rows []*goquery.Selection
	doc.Find("a.list-row-visible").Each(func(_ int, row *goquery.Selection) {
		cell, err := htmlutil.Text(row, ".row-cell.width-140")
		if err != nil {
			return
		}
		if cell == string(ean) {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return Resolution{}, fmt.Errorf("%w: no connection with ean %s", ErrValueMissing, ean)
	}

	href, exists := rows[0].Attr("href")
	if !exists {
		return Resolution{}, fmt.Errorf("%w: connection doesn't contain a link", ErrValueMissing)
	}
	segment := href[strings.LastIndex(href, "/")+1:]
	if segment == "" {
		return Resolution{}, fmt.Errorf("%w: connection url doesn't contain an id", ErrValueMissing)
	}
	id, err := strconv.ParseUint(segment, 10, 32)
	if err != nil {
		return Resolution{}, fmt.Errorf("parse connection id %q: %w", segment, err)
	}

	return Resolution{ID: ConnectionID(id), Matches: len(rows)}, nil
}

func (c *Client) editPage(ctx context.Context, id ConnectionID) (*goquery.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, err := c.get(ctx, fmt.Sprintf("%s/%d", editPath, id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	doc, err := htmlutil.Parse(res.Body())
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

// EANFromID reads the EAN off the edit page of a connection.
func (c *Client) EANFromID(ctx context.Context, id ConnectionID) (EAN, error) {
	ctx, span := tracer.Start(ctx, "resolver:EANFromID")
	defer span.End()
	span.SetAttributes(attribute.Int64("connection_id", int64(id)))

	resolveError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve ean")
		c.tel.ReportWarning(report_resolver_ean_from_id, err, id)
		return &ResolveError{Op: "ean from id", Err: err}
	}

	doc, err := c.editPage(ctx, id)
	if err != nil {
		return "", resolveError(err)
	}
	value, err := htmlutil.Attr(doc.Selection, "#Mod_ean", "value")
	if err != nil {
		return "", resolveError(fmt.Errorf("%w: %w", ErrValueMissing, err))
	}
	return EAN(strings.TrimSpace(value)), nil
}

// DataRange is the period the portal holds measurement data for.
type DataRange struct {
	Start time.Time
	End   time.Time
}

// DataRangeFromID reads the available measurement period off the edit page of a connection.
func (c *Client) DataRangeFromID(ctx context.Context, id ConnectionID) (DataRange, error) {
	ctx, span := tracer.Start(ctx, "resolver:DataRangeFromID")
	defer span.End()

	resolveError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve data range")
		c.tel.ReportWarning(report_resolver_date_range, err, id)
		return &ResolveError{Op: "data range from id", Err: err}
	}

	doc, err := c.editPage(ctx, id)
	if err != nil {
		return DataRange{}, resolveError(err)
	}
	value, err := htmlutil.Attr(doc.Selection, "#statusDataOdaRequest", "value")
	if err != nil {
		return DataRange{}, resolveError(fmt.Errorf("%w: %w", ErrValueMissing, err))
	}
	dataRange, err := parseDataRange(value, c.clock.Now().Location())
	if err != nil {
		return DataRange{}, resolveError(err)
	}
	return dataRange, nil
}

func parseDataRange(value string, loc *time.Location) (DataRange, error) {
	var dates []time.Time
	for _, field := range strings.Fields(value) {
		date, err := time.ParseInLocation("02-01-2006", field, loc)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	if len(dates) < 2 {
		return DataRange{}, fmt.Errorf("%w: not enough dates in %q", ErrValueMissing, value)
	}
	return DataRange{Start: dates[0], End: dates[1]}, nil
}

// Resolver maps EANs to connection ids and back.
type Resolver interface {
	IDFromEAN(ctx context.Context, ean EAN) (Resolution, error)
	EANFromID(ctx context.Context, id ConnectionID) (EAN, error)
}

// ResolvePair resolves ean to a connection id and only accepts it when the connection
// maps back to the very same EAN.
func ResolvePair(ctx context.Context, r Resolver, ean EAN) (Pair, Resolution, error) {
	resolution, err := r.IDFromEAN(ctx, ean)
	if err != nil {
		return Pair{}, Resolution{}, err
	}
	received, err := r.EANFromID(ctx, resolution.ID)
	if err != nil {
		return Pair{}, resolution, err
	}
	if received != ean {
		return Pair{}, resolution, &MismatchError{
			Requested: ean,
			Received:  received,
			ID:        resolution.ID,
		}
	}
	return Pair{EAN: ean, ID: resolution.ID}, resolution, nil
}

// IsMismatch reports whether err is a failed round trip check.
func IsMismatch(err error) bool {
	var mismatch *MismatchError
	return errors.As(err, &mismatch)
}
