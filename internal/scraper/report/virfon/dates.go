package virfon

import "time"

// PortalDateLayout is the jQuery UI "dd M yy" format the portal's date
// widget accepts, e.g. "08 Oct 2025".
const PortalDateLayout = "02 Jan 2006"

func FormatPortalDate(t time.Time) string {
	return t.Format(PortalDateLayout)
}

func ParsePortalDate(s string) (time.Time, error) {
	return time.Parse(PortalDateLayout, s)
}

// ReportDay is the single day a calls-detail export covers: offset days
// before now, in now's location.
func ReportDay(now time.Time, offset int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}
