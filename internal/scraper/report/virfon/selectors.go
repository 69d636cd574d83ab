package virfon

import "github.com/memorialtech/virfon-scraper/internal/scraper/browser"

// Portal menus, addressed as index.php?menu=<key>
const (
	MenuCallsDetail = "calls_detail"
	MenuCampaignIn  = "campaign_in"
	MenuCampaignOut = "campaign_out"
)

// Login page
var (
	LocUserInput     = browser.ID("input_user")
	LocPasswordInput = browser.Name("input_pass")
	LocSubmitLogin   = browser.Name("submit_login")
)

const SelectorLoginError = ".form-login-error"

// Calls detail report
var (
	LocFilterToggle = browser.ID("neo-table-filter-button-arrow")
	LocFilterButton = browser.Name("filter")
	LocDownloadMenu = browser.ID("neo-table-button-download-right")

	// Both date inputs carry the jQuery UI class; the positional fallback keeps
	// the end date from resolving to the start input.
	StartDateChain = browser.Chain{
		browser.Name("date_start"),
		browser.CSS("input[name*='date_start']"),
		browser.XPath("(//input[contains(concat(' ', normalize-space(@class), ' '), ' hasDatepicker ')])[1]"),
	}
	EndDateChain = browser.Chain{
		browser.Name("date_end"),
		browser.CSS("input[name*='date_end']"),
		browser.XPath("(//input[contains(concat(' ', normalize-space(@class), ' '), ' hasDatepicker ')])[2]"),
	}

	// LocCSVExport is the export icon; its parent anchor carries the href.
	LocCSVExport   = browser.ID("CSV")
	LocCSVFallback = browser.XPath("//a[contains(., 'CSV') or contains(@href, '.csv')]")
)

// Campaign tables
var (
	// CampaignTableProbes locate the frame holding the results table.
	CampaignTableProbes = browser.Chain{
		browser.XPath("//a[normalize-space(text())='[CSV Data]']"),
		browser.XPath("//a[contains(@href,'action=csv_data')]"),
		browser.XPath("//table//tr[td]"),
	}

	FirstPageChain = browser.Chain{
		browser.XPath("//a[normalize-space(text())='First']"),
		browser.XPath("//a[normalize-space(text())='Inicio']"),
		browser.XPath("//a[contains(., '«') or contains(., '<<')]"),
	}

	NextPageChain = browser.Chain{
		browser.XPath("//a[normalize-space(text())='Next' or normalize-space(text())='Siguiente' or normalize-space(text())='Próximo']"),
		browser.XPath("//a[contains(., '»') or contains(., '>')][not(contains(., '<<')) and not(contains(., '<'))]"),
		browser.XPath("//button[contains(., 'Next') or contains(., 'Siguiente') or contains(., 'Próximo')]"),
		browser.XPath("//li[@class='next']/a"),
	}
)

// Row-level CSV link text and href marker, in preference order after the
// exact label.
const (
	CSVLinkLabel      = "[CSV Data]"
	CSVLinkHrefMarker = "action=csv_data"
	CSVLinkText       = "CSV"
)
