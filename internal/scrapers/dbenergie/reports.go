package dbenergie

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"rapportage-downloader/internal/components/chrono"
	"time"
)

// Report is one kind of export the portal can generate. The set of implementations is closed,
// every kind carries exactly the parameters its payload needs.
type Report interface {
	Name() string
	endpoint() string
	payload(account Account, now time.Time) any
}

type CatalogKind int

const (
	ConnectionList CatalogKind = iota
	TaxCluster
	IntermediateMeters
	Buildings
	MeteringServices
	Metadata
	MeterReadings
)

var catalogKinds = []CatalogKind{
	ConnectionList,
	TaxCluster,
	IntermediateMeters,
	Buildings,
	MeteringServices,
	Metadata,
	MeterReadings,
}

func (k CatalogKind) String() string {
	switch k {
	case ConnectionList:
		return "connection-list"
	case TaxCluster:
		return "tax-cluster"
	case IntermediateMeters:
		return "intermediate-meters"
	case Buildings:
		return "buildings"
	case MeteringServices:
		return "metering-services"
	case Metadata:
		return "metadata"
	case MeterReadings:
		return "meter-readings"
	}
	return fmt.Sprintf("catalog(%d)", int(k))
}

func (k CatalogKind) endpoint() string {
	switch k {
	case ConnectionList:
		return "/Connections/List/ExportList"
	case TaxCluster:
		return "/Connections/List/ExportTaxationCluster"
	case IntermediateMeters:
		return "/Connections/IntermediateMeter/ExportList"
	case Buildings:
		return "/Buildings/List/ExportList"
	case MeteringServices:
		return "/Report/MeteringServices/ExportList"
	case Metadata:
		return "/Report/Metadata/ExportList"
	case MeterReadings:
		return "/Report/MeterReadings/ExportList"
	}
	return ""
}

// CatalogReport is a static listing that only depends on the current year.
type CatalogReport struct {
	Kind CatalogKind
}

type catalogPayload struct {
	Year int `json:"year"`
}

func (r CatalogReport) Name() string     { return r.Kind.String() }
func (r CatalogReport) endpoint() string { return r.Kind.endpoint() }

func (r CatalogReport) payload(_ Account, now time.Time) any {
	return catalogPayload{Year: now.Year()}
}

type EmissionUnit int

const (
	UnitCO2 EmissionUnit = 1
	UnitMJ  EmissionUnit = 2
)

// EmissionReport covers the last two years of CO2 or MJ usage.
type EmissionReport struct {
	Unit EmissionUnit
}

type emissionPayload struct {
	PortalID    int          `json:"portalId"`
	UnitID      EmissionUnit `json:"unitId"`
	CustomerIDs []int        `json:"customerIds"`
	YearFrom    int          `json:"yearFrom"`
	YearTill    int          `json:"yearTill"`
	ReportType  string       `json:"reportType"`
}

func (r EmissionReport) Name() string {
	if r.Unit == UnitMJ {
		return "mj"
	}
	return "co2"
}

func (r EmissionReport) endpoint() string { return "/Report/Co2/ExportList" }

func (r EmissionReport) payload(account Account, now time.Time) any {
	return emissionPayload{
		PortalID:    account.PortalID,
		UnitID:      r.Unit,
		CustomerIDs: nonNil(account.CustomerIDs),
		YearFrom:    now.Year() - 1,
		YearTill:    now.Year(),
		ReportType:  "total",
	}
}

// DataQualityReport covers the current month.
type DataQualityReport struct{}

type dataQualityPayload struct {
	PortalID      int   `json:"portalId"`
	ProductID     int   `json:"productId"`
	CustomerID    int   `json:"customerId"`
	Year          int   `json:"year"`
	Month         int   `json:"month"`
	DepartmentIDs []int `json:"departmentIds"`
	CostplaceIDs  []int `json:"costplaceIds"`
	LabelIDs      []int `json:"labelIds"`
	BuildingIDs   []int `json:"buildingIds"`
}

func (DataQualityReport) Name() string     { return "data-quality" }
func (DataQualityReport) endpoint() string { return "/Report/DataQuality/ExportList" }

func (DataQualityReport) payload(account Account, now time.Time) any {
	return dataQualityPayload{
		PortalID:      account.PortalID,
		ProductID:     account.ProductID,
		CustomerID:    account.customerID(),
		Year:          now.Year(),
		Month:         int(now.Month()),
		DepartmentIDs: []int{},
		CostplaceIDs:  []int{},
		LabelIDs:      []int{},
		BuildingIDs:   []int{},
	}
}

// ConsumptionReport covers the total consumption of the last two years.
type ConsumptionReport struct{}

type consumptionPayload struct {
	ClassificationID int    `json:"classificationId"`
	CustomerIDs      []int  `json:"customerIds"`
	ProductID        int    `json:"productId"`
	ReportType       string `json:"reportType"`
	YearFrom         int    `json:"yearFrom"`
	YearTill         int    `json:"yearTill"`
	GetODA           bool   `json:"getODA"`
	MonthFrom        int    `json:"monthFrom"`
	MonthTill        int    `json:"monthTill"`
	DepartmentIDs    []int  `json:"departmentIds"`
	CostplaceIDs     []int  `json:"costplaceIds"`
	LabelIDs         []int  `json:"labelIds"`
	BuildingIDs      []int  `json:"buildingIds"`
	IsCollective     bool   `json:"isCollective"`
}

func (ConsumptionReport) Name() string     { return "consumption" }
func (ConsumptionReport) endpoint() string { return "/Report/Consumption/ExportList" }

func (ConsumptionReport) payload(account Account, now time.Time) any {
	return consumptionPayload{
		ClassificationID: 0,
		CustomerIDs:      nonNil(account.CustomerIDs),
		ProductID:        1,
		ReportType:       "total",
		YearFrom:         now.Year() - 1,
		YearTill:         now.Year(),
		GetODA:           true,
		MonthFrom:        1,
		MonthTill:        12,
		DepartmentIDs:    []int{},
		CostplaceIDs:     []int{},
		LabelIDs:         []int{},
		BuildingIDs:      []int{},
		IsCollective:     false,
	}
}

// HourlyUsageReport is the per hour usage of a single meter between two calendar dates,
// both inclusive.
type HourlyUsageReport struct {
	Meter ConnectionID
	Start time.Time
	End   time.Time
}

// LastYearOfUsage is the hourly usage of meter from one year before today through today.
func LastYearOfUsage(meter ConnectionID, now time.Time) HourlyUsageReport {
	today := chrono.Today(now.In(chrono.Amsterdam()))
	return HourlyUsageReport{
		Meter: meter,
		Start: today.AddDate(-1, 0, 0),
		End:   today,
	}
}

type hourlyUsagePayload struct {
	MeterID   []ConnectionID `json:"meterId"`
	StartDate string         `json:"startDate"`
	EndDate   string         `json:"endDate"`
	Interval  string         `json:"interval"`
	ChartType string         `json:"chartType"`
	Excel     bool           `json:"excel"`
	ProductID int            `json:"productId"`
}

func (HourlyUsageReport) Name() string     { return "hourly-usage" }
func (HourlyUsageReport) endpoint() string { return "/Report/Graph/ExportExcel" }

func (r HourlyUsageReport) payload(Account, time.Time) any {
	return hourlyUsagePayload{
		MeterID:   []ConnectionID{r.Meter},
		StartDate: r.Start.Format("2006-01-02") + " 00:00",
		EndDate:   r.End.Format("2006-01-02") + " 23:55",
		Interval:  "uur",
		ChartType: "column",
		Excel:     true,
		ProductID: 0,
	}
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

// BuildPayload returns the value the portal expects for r, with years and months taken
// from now in the portal's timezone.
func BuildPayload(r Report, account Account, now time.Time) any {
	return r.payload(account, now.In(chrono.Amsterdam()))
}

// EncodePayload serializes a payload into the value of the `request` header.
func EncodePayload(v any) (string, error) {
	serialized, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(serialized), nil
}

// AllReports lists every report that can be requested without parameters.
func AllReports() []Report {
	reports := make([]Report, 0, len(catalogKinds)+4)
	for _, kind := range catalogKinds {
		reports = append(reports, CatalogReport{Kind: kind})
	}
	reports = append(
		reports,
		EmissionReport{Unit: UnitCO2},
		EmissionReport{Unit: UnitMJ},
		DataQualityReport{},
		ConsumptionReport{},
	)
	return reports
}

// ParseReport returns the parameterless report called name.
func ParseReport(name string) (Report, error) {
	for _, r := range AllReports() {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
}

// ReportNames lists the names accepted by ParseReport.
func ReportNames() []string {
	reports := AllReports()
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Name()
	}
	return names
}
