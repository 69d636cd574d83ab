package virfon

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CampaignRow is one row of a campaign results table, parsed from a snapshot
// of the frame markup. It is recomputed on every page render.
type CampaignRow struct {
	RawName        string
	NormalizedName string
	// Href is the row's CSV export link as written in the markup, possibly
	// relative. Empty when the row exposes no CSV link.
	Href string
}

// ParseCampaignRows extracts every table row that has data cells and a
// campaign name link in its second cell.
func ParseCampaignRows(html string) ([]CampaignRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var rows []CampaignRow
	doc.Find("tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		name := strings.Join(strings.Fields(cells.Eq(1).Find("a").First().Text()), " ")
		if name == "" {
			return
		}
		rows = append(rows, CampaignRow{
			RawName:        name,
			NormalizedName: NormalizeLabel(name),
			Href:           csvLinkHref(tr),
		})
	})

	return rows, nil
}

// csvLinkHref picks the row's CSV link: the exact "[CSV Data]" label first,
// then the csv_data href marker, then any link mentioning CSV.
func csvLinkHref(tr *goquery.Selection) string {
	links := tr.Find("a")

	pick := func(match func(text, href string) bool) string {
		var found string
		links.EachWithBreak(func(i int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if match(strings.TrimSpace(a.Text()), href) && href != "" {
				found = href
				return false
			}
			return true
		})
		return found
	}

	if href := pick(func(text, _ string) bool { return normalizeSpace(text) == CSVLinkLabel }); href != "" {
		return href
	}
	if href := pick(func(_, href string) bool { return strings.Contains(href, CSVLinkHrefMarker) }); href != "" {
		return href
	}
	return pick(func(text, _ string) bool { return strings.Contains(text, CSVLinkText) })
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RowNames lists the raw names of rows, at most limit of them.
func RowNames(rows []CampaignRow, limit int) []string {
	var out []string
	for i, r := range rows {
		if i == limit {
			break
		}
		out = append(out, r.RawName)
	}
	return out
}

type LoginErrorInfo struct {
	Message string
}

func (e *LoginErrorInfo) Error() string {
	if e.Message == "" {
		return "login rejected"
	}
	return fmt.Sprintf("login rejected: %s", e.Message)
}

// DetectLoginError looks for the portal's login error region. Elements
// hidden with an inline display:none are ignored.
func DetectLoginError(html string) (*LoginErrorInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var info *LoginErrorInfo
	doc.Find(SelectorLoginError).EachWithBreak(func(i int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if strings.Contains(strings.ReplaceAll(strings.ToLower(style), " ", ""), "display:none") {
			return true
		}
		info = &LoginErrorInfo{Message: normalizeSpace(s.Text())}
		return false
	})

	return info, nil
}
