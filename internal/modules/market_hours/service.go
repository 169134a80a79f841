// Package market_hours classifies the NSE trading session for a point in time.
package market_hours

import (
	"time"
	_ "time/tzdata" // hosts without a zoneinfo database still resolve Asia/Kolkata
)

// Session states reported to the dashboard.
const (
	StatusPreMarket  = "pre-market"
	StatusOpen       = "open"
	StatusPostMarket = "post-market"
	StatusClosed     = "closed"
)

// Session boundaries in minutes since midnight, India Standard Time.
const (
	preMarketStart  = 9 * 60
	marketOpen      = 9*60 + 15
	marketClose     = 15*60 + 30
	postMarketClose = 16 * 60
)

// Timezone is the exchange's local zone.
const Timezone = "Asia/Kolkata"

// MarketStatus is the JSON shape returned alongside index data.
type MarketStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MarketHoursService computes market status. Holidays are not modelled.
type MarketHoursService struct {
	loc *time.Location
}

// NewMarketHoursService loads the IST zone, falling back to a fixed +05:30
// offset when the tzdata is unavailable.
func NewMarketHoursService() *MarketHoursService {
	loc, err := time.LoadLocation(Timezone)
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return &MarketHoursService{loc: loc}
}

// Location returns the exchange timezone.
func (s *MarketHoursService) Location() *time.Location {
	return s.loc
}

// Status classifies now. The lower bound of each window is inclusive.
func (s *MarketHoursService) Status(now time.Time) MarketStatus {
	local := now.In(s.loc)
	day := local.Weekday()

	if day == time.Saturday || day == time.Sunday {
		return MarketStatus{Status: StatusClosed, Message: "Weekend - Market Closed"}
	}

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= preMarketStart && minutes < marketOpen:
		return MarketStatus{Status: StatusPreMarket, Message: "Pre-market Session"}
	case minutes >= marketOpen && minutes < marketClose:
		return MarketStatus{Status: StatusOpen, Message: "Market Open"}
	case minutes >= marketClose && minutes < postMarketClose:
		return MarketStatus{Status: StatusPostMarket, Message: "Post-market Session"}
	}

	return MarketStatus{Status: StatusClosed, Message: "Market Closed"}
}

// IsOpen reports whether regular trading is in progress.
func (s *MarketHoursService) IsOpen(now time.Time) bool {
	return s.Status(now).Status == StatusOpen
}

// FormatLocal renders t the way the exchange labels update times.
func (s *MarketHoursService) FormatLocal(t time.Time) string {
	return t.In(s.loc).Format("02-Jan-2006 15:04:05")
}
