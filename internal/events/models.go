package events

import "time"

// Event store tables. All four share pid, created and a dimension subset.
const (
	TableTraffic      = "analytics"
	TableCustomEvents = "customEV"
	TablePerformance  = "performance"
	TableCaptcha      = "captcha"
)

// Source is the logical table a chart query reads from.
type Source string

const (
	SourceTraffic      Source = "traffic"
	SourceCustomEvents Source = "customEV"
	SourcePerformance  Source = "performance"
	SourceCaptcha      Source = "captcha"
)

// Table returns the physical table for a source.
func (s Source) Table() string {
	switch s {
	case SourceCustomEvents:
		return TableCustomEvents
	case SourcePerformance:
		return TablePerformance
	case SourceCaptcha:
		return TableCaptcha
	default:
		return TableTraffic
	}
}

// Dimensions are the filterable columns of traffic and custom events.
type Dimensions struct {
	Page     string // pg
	Previous string // prev
	Host     string // host
	Referrer string // ref
	Source   string // so
	Medium   string // me
	Campaign string // ca
	Term     string // te
	Content  string // co
	Device   string // dv
	Browser  string // br
	BrowserV string // brv
	OS       string // os
	OSV      string // osv
	Country  string // cc
	Region   string // rg
	City     string // ct
	Locale   string // lc
}

// Pageview is one row of the traffic table.
type Pageview struct {
	PID             string
	PSID            string
	Created         time.Time
	Unique          bool
	SessionDuration uint32
	Dimensions
}

// CustomEvent is one row of the custom-event table.
type CustomEvent struct {
	PID     string
	PSID    string
	Created time.Time
	Name    string
	Meta    map[string]string
	Dimensions
}

// PerformanceTiming holds page timings in milliseconds.
type PerformanceTiming struct {
	PID      string
	Created  time.Time
	Page     string
	Device   string
	Browser  string
	Country  string
	Region   string
	City     string
	DNS      float64
	TLS      float64
	Conn     float64
	Response float64
	Render   float64
	DomLoad  float64
	TTFB     float64
}

// CaptchaPass is one successful CAPTCHA completion.
type CaptchaPass struct {
	PID     string
	Created time.Time
	Country string
	Browser string
	OS      string
	Device  string
}
