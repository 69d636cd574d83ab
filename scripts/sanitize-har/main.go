// sanitize-har redacts portal credentials, session cookies and tokens from
// a HAR recording before it is committed as a replay fixture.
//
// Usage:
//
//	go run ./scripts/sanitize-har -scenario=login-success
//	go run ./scripts/sanitize-har -input=recording.har -output=clean.har.json -host=virfon.example
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/memorialtech/virfon-scraper/internal/scraper/testutil"
)

func main() {
	portal := flag.String("portal", "virfon", "portal package under internal/scraper/report")
	scenario := flag.String("scenario", "", "recording name, e.g. login-success")
	inputPath := flag.String("input", "", "input HAR file")
	outputPath := flag.String("output", "", "output HAR file (defaults to the input)")
	host := flag.String("host", "", "keep only entries for this host")
	dryRun := flag.Bool("dry-run", false, "report redactions without writing")
	flag.Parse()

	var inPath, outPath string
	switch {
	case *scenario != "":
		inPath = filepath.Join("internal", "scraper", "report", *portal, "testdata", "recordings", *scenario+".har.json")
		outPath = inPath
	case *inputPath != "":
		inPath, outPath = *inputPath, *inputPath
		if *outputPath != "" {
			outPath = *outputPath
		}
	default:
		flag.Usage()
		os.Exit(1)
	}

	har, err := testutil.LoadHAR(inPath)
	if err != nil {
		fmt.Printf("Error loading HAR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d entries from %s\n", len(har.Entries), inPath)

	if *host != "" {
		har = har.OnlyHost(*host)
		fmt.Printf("Kept %d entries for host %s\n", len(har.Entries), *host)
	}

	clean := testutil.SanitizeHAR(har)
	changes := diff(har, clean)
	for _, c := range changes {
		fmt.Println("  -", c)
	}
	fmt.Printf("Redacted %d values\n", len(changes))

	if *dryRun {
		fmt.Println("[DRY RUN] No changes written.")
		return
	}
	if err := testutil.SaveHAR(outPath, clean); err != nil {
		fmt.Printf("Error saving HAR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sanitized HAR saved to: %s\n", outPath)
}

// diff lists what sanitizing changed, one line per redacted value.
func diff(orig, clean *testutil.HARLog) []string {
	var out []string
	for i := range orig.Entries {
		o, c := orig.Entries[i], clean.Entries[i]
		where := fmt.Sprintf("entry %d %s %s", i+1, o.Request.Method, truncate(o.Request.URL, 70))

		if o.Request.URL != c.Request.URL {
			out = append(out, where+": query parameters")
		}
		for j, h := range o.Request.Headers {
			if h.Value != c.Request.Headers[j].Value {
				out = append(out, fmt.Sprintf("%s: request header %s", where, h.Name))
			}
		}
		if o.Request.Body != c.Request.Body {
			out = append(out, where+": request body")
		}
		for j, h := range o.Response.Headers {
			if h.Value != c.Response.Headers[j].Value {
				out = append(out, fmt.Sprintf("%s: response header %s", where, h.Name))
			}
		}
		if o.Response.Content.Text != c.Response.Content.Text {
			out = append(out, where+": response body")
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
