// capture-fixtures saves frame-inlined HTML snapshots of Virfon portal
// pages as parser test fixtures.
//
// Usage:
//
//	go run ./scripts/capture-fixtures -url=https://virfon.example/
//
// A visible browser opens; follow each prompt and press ENTER to capture.
// Sanitize the result with ./scripts/sanitize-fixtures before committing.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report/virfon"
)

type pageCapture struct {
	Name         string
	Instructions string
	// Menu is opened automatically when set.
	Menu string
}

var capturePages = []pageCapture{
	{Name: "login_page", Instructions: "Wait for the login form (don't log in yet)"},
	{Name: "login_error", Instructions: "Submit INVALID credentials"},
	{Name: "dashboard", Instructions: "Log in with VALID credentials"},
	{Name: "calls_detail", Instructions: "Open the filter panel", Menu: virfon.MenuCallsDetail},
	{Name: "campaigns_in", Instructions: "Wait for the incoming campaigns table", Menu: virfon.MenuCampaignIn},
	{Name: "campaigns_out", Instructions: "Wait for the outgoing campaigns table", Menu: virfon.MenuCampaignOut},
}

func main() {
	baseURL := flag.String("url", "", "portal base URL")
	outputDir := flag.String("output", filepath.Join("internal", "scraper", "report", "virfon", "testdata", "fixtures"), "fixture directory")
	bin := flag.String("bin", "", "Chromium binary")
	flag.Parse()

	if *baseURL == "" {
		fmt.Println("Usage: go run ./scripts/capture-fixtures -url=https://virfon.example/")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}
	root := strings.TrimRight(*baseURL, "/")

	l := launcher.New().
		Headless(false).
		Set("ignore-certificate-errors").
		Set("window-size", "1920,1080")
	if *bin != "" {
		l = l.Bin(*bin)
	}
	u := l.MustLaunch()
	defer l.Cleanup()

	b := rod.New().ControlURL(u).MustConnect()
	defer b.MustClose()
	b.MustIgnoreCertErrors(true)

	page := stealth.MustPage(b)
	page.MustEvalOnNewDocument(browser.NetmonBootstrapScript())
	page.MustNavigate(root + "/")

	sync := browser.NewSync(30 * time.Second)
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("================================================================")
	fmt.Printf("  VIRFON FIXTURE CAPTURE -> %s\n", *outputDir)
	fmt.Println("================================================================")

	for _, c := range capturePages {
		fmt.Println("----------------------------------------------------------------")
		fmt.Printf("Capturing: %s.html\n", c.Name)
		if c.Menu != "" {
			if err := page.Navigate(root + "/index.php?menu=" + c.Menu); err != nil {
				fmt.Printf("  navigate failed: %v\n", err)
			}
		}
		fmt.Printf("  -> %s\n", c.Instructions)
		fmt.Print("  Press ENTER when ready (or 'skip'/'quit'): ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))
		if input == "quit" {
			break
		}
		if input == "skip" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := sync.WaitReadyAndQuiet(ctx, page, 1200*time.Millisecond, time.Minute); err != nil {
			fmt.Printf("  (page did not settle: %v)\n", err)
		}
		cancel()

		// Screenshot first: it is the visual reference for the markup.
		if buf, err := page.Screenshot(false, nil); err == nil {
			_ = os.WriteFile(filepath.Join(*outputDir, c.Name+".png"), buf, 0o644)
		}

		html, inlined, err := browser.InlineFrames(page)
		if err != nil {
			fmt.Printf("  Error capturing HTML: %v\n", err)
			continue
		}
		path := filepath.Join(*outputDir, c.Name+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			fmt.Printf("  Error saving HTML: %v\n", err)
			continue
		}
		fmt.Printf("  Saved %s (%d iframe(s) inlined) from %s\n", path, inlined, page.MustInfo().URL)
	}

	fmt.Println("================================================================")
	fmt.Println("  Capture complete. Sanitize before committing:")
	fmt.Println("  go run ./scripts/sanitize-fixtures")
	fmt.Println("================================================================")
}
