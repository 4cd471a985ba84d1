package metrics

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// twelveHourRegions use an AM/PM clock for short times.
var twelveHourRegions = map[string]bool{
	"US": true, "CA": true, "AU": true, "NZ": true, "IN": true,
	"PH": true, "PK": true, "EG": true, "SA": true, "BD": true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// TimeFormatter renders bucket timestamps as a locale's short hour:minute time.
type TimeFormatter struct {
	tag      language.Tag
	location *time.Location
	layout   string
}

// NewTimeFormatter parses a BCP 47 locale such as "de-DE". A nil location means time.Local.
func NewTimeFormatter(locale string, location *time.Location) (*TimeFormatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse locale %q: %w", locale, err)
	}
	if location == nil {
		location = time.Local
	}
	layout := "15:04"
	if region, _ := tag.Region(); twelveHourRegions[region.String()] {
		layout = "03:04 PM"
	}
	return &TimeFormatter{tag: tag, location: location, layout: layout}, nil
}

// Locale returns the parsed locale tag.
func (f *TimeFormatter) Locale() string {
	return f.tag.String()
}

// Label formats raw. Timestamps without a zone are read in the formatter's location.
// Unparsable input is returned unchanged.
func (f *TimeFormatter) Label(raw string) string {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, f.location)
		if err == nil {
			return t.In(f.location).Format(f.layout)
		}
	}
	return raw
}

// Ingest converts a backend series into a chart frame: labels are re-rendered as short
// local times and values are copied unchanged. A frame without labels or datasets, or
// whose datasets disagree with the label count, yields an empty frame. Ingest is pure.
func Ingest(frame models.TimeSeriesFrame, format *TimeFormatter) models.TimeSeriesFrame {
	if frame.Labels == nil || frame.Datasets == nil {
		return models.EmptyFrame()
	}
	for _, ds := range frame.Datasets {
		if len(ds.Data) != len(frame.Labels) {
			return models.EmptyFrame()
		}
	}

	out := models.TimeSeriesFrame{
		Labels:   make([]string, len(frame.Labels)),
		Datasets: make([]models.Dataset, len(frame.Datasets)),
	}
	for i, lbl := range frame.Labels {
		if format != nil {
			lbl = format.Label(lbl)
		}
		out.Labels[i] = lbl
	}
	for i, ds := range frame.Datasets {
		out.Datasets[i] = models.Dataset{
			Label: ds.Label,
			Data:  append([]float64(nil), ds.Data...),
		}
		if out.Datasets[i].Data == nil {
			out.Datasets[i].Data = []float64{}
		}
	}
	return out
}
