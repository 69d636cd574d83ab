// discover-frames opens the Virfon portal in a visible browser and prints
// the frame tree of each report page, probing every frame for the
// selectors the scraper relies on. Run it after a portal upgrade to see
// which locators moved.
//
// Usage:
//
//	go run ./scripts/discover-frames -config=config.yaml
//	go run ./scripts/discover-frames -url=https://virfon.example/
//
// The tool opens the login page and waits while you log in by hand, then
// visits each report menu in turn.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/memorialtech/virfon-scraper/internal/config"
	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report/virfon"
)

type probe struct {
	Name    string
	Locator browser.Locator
}

func chainProbes(name string, chain browser.Chain) []probe {
	out := make([]probe, len(chain))
	for i, loc := range chain {
		out[i] = probe{Name: fmt.Sprintf("%s #%d", name, i+1), Locator: loc}
	}
	return out
}

func virfonProbes() []probe {
	probes := []probe{
		{"User input", virfon.LocUserInput},
		{"Password input", virfon.LocPasswordInput},
		{"Login submit", virfon.LocSubmitLogin},
		{"Login error", browser.CSS(virfon.SelectorLoginError)},
		{"Filter toggle", virfon.LocFilterToggle},
		{"Filter button", virfon.LocFilterButton},
		{"Download menu", virfon.LocDownloadMenu},
		{"CSV export icon", virfon.LocCSVExport},
		{"CSV fallback link", virfon.LocCSVFallback},
	}
	probes = append(probes, chainProbes("Start date", virfon.StartDateChain)...)
	probes = append(probes, chainProbes("End date", virfon.EndDateChain)...)
	probes = append(probes, chainProbes("Campaign table", virfon.CampaignTableProbes)...)
	probes = append(probes, chainProbes("First page", virfon.FirstPageChain)...)
	probes = append(probes, chainProbes("Next page", virfon.NextPageChain)...)
	return probes
}

func main() {
	cfgPath := flag.String("config", "", "YAML config file (portal.base_url, browser.bin)")
	baseURL := flag.String("url", "", "portal base URL, overrides the config")
	bin := flag.String("bin", "", "Chromium binary, overrides the config")
	flag.Parse()

	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if *baseURL == "" {
			*baseURL = cfg.Portal.BaseURL
		}
		if *bin == "" {
			*bin = cfg.Browser.Bin
		}
	}
	if *baseURL == "" {
		fmt.Println("Usage: go run ./scripts/discover-frames -url=https://virfon.example/")
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

	sync := browser.NewSync(30 * time.Second)
	probes := virfonProbes()
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("================================================================")
	fmt.Println("  FRAME DISCOVERY: VIRFON")
	fmt.Println("================================================================")

	pages := []struct {
		Name string
		URL  string
	}{
		{"Login page", root + "/"},
		{"Calls detail", root + "/index.php?menu=" + virfon.MenuCallsDetail},
		{"Incoming campaigns", root + "/index.php?menu=" + virfon.MenuCampaignIn},
		{"Outgoing campaigns", root + "/index.php?menu=" + virfon.MenuCampaignOut},
	}

	for i, pg := range pages {
		fmt.Println("----------------------------------------------------------------")
		fmt.Printf("PAGE: %s\n  -> %s\n", pg.Name, pg.URL)

		if err := page.Navigate(pg.URL); err != nil {
			fmt.Printf("  navigate failed: %v\n", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := sync.WaitReadyAndQuiet(ctx, page, 1200*time.Millisecond, time.Minute); err != nil {
			fmt.Printf("  (page did not settle: %v)\n", err)
		}
		cancel()

		fmt.Printf("\n  URL: %s  iframes: %d\n\n", page.MustInfo().URL, browser.CountFrames(page))
		inspectFrame(page, "main", 1, probes)
		fmt.Println()

		if i == 0 {
			fmt.Print("  Log in in the browser window, then press ENTER (or 'quit'): ")
			input, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(input)) == "quit" {
				break
			}
		}
	}

	fmt.Println("================================================================")
	fmt.Println("  Discovery complete.")
	fmt.Println("================================================================")
}

// inspectFrame reports which probes match in frame, then descends into its
// iframes.
func inspectFrame(frame *rod.Page, path string, depth int, probes []probe) {
	indent := strings.Repeat("  ", depth)

	found := 0
	for _, p := range probes {
		el, ok, err := p.Locator.Find(frame)
		if err != nil || !ok {
			continue
		}
		visible, _ := el.Visible()
		clickable, _ := browser.Clickable(el)
		fmt.Printf("%sFOUND  %-22s  %s  (visible=%v, clickable=%v)\n", indent, p.Name, p.Locator, visible, clickable)
		found++
	}
	if found == 0 {
		fmt.Printf("%s(no known selectors found)\n", indent)
	}

	iframes, err := frame.Elements("iframe")
	if err != nil {
		return
	}
	for i, iframe := range iframes {
		src, _ := iframe.Attribute("src")
		id, _ := iframe.Attribute("id")

		label := fmt.Sprintf("iframe[%d]", i)
		if id != nil && *id != "" {
			label = fmt.Sprintf("iframe[%d]#%s", i, *id)
		}
		childPath := path + " > " + label
		fmt.Printf("\n%sIFRAME %s  src=%s\n", indent, childPath, truncate(deref(src), 80))

		child, err := iframe.Frame()
		if err != nil {
			fmt.Printf("%s  (cannot access frame: %v)\n", indent, err)
			continue
		}
		inspectFrame(child, childPath, depth+1, probes)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
