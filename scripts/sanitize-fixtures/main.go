// sanitize-fixtures masks caller data in captured portal fixtures: phone
// numbers, national IDs, agent names and session tokens.
//
// Usage:
//
//	go run ./scripts/sanitize-fixtures [-dir=...] [-dry-run]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var sanitizePatterns = []struct {
	Pattern     *regexp.Regexp
	Replacement string
	Description string
}{
	{
		regexp.MustCompile(`\b9\d{8}\b`),
		"999000111",
		"Mobile number",
	},
	{
		regexp.MustCompile(`\b0?1\d{7}\b`),
		"10000000",
		"Landline or DNI",
	},
	{
		regexp.MustCompile(`(?i)(agente?|agent)\s*[:=]?\s*[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)+`),
		"$1 NOMBRE APELLIDO",
		"Agent name",
	},
	{
		regexp.MustCompile(`(?i)(phpsessid|token|csrf|session)(["\s:=]+["']?)[a-zA-Z0-9_-]{16,}`),
		`${1}${2}REDACTED`,
		"Session token",
	},
	{
		regexp.MustCompile(`(?i)(name=["']input_(?:user|pass)["'][^>]*value=["'])[^"']*`),
		"${1}",
		"Login field value",
	},
}

func main() {
	dir := flag.String("dir", filepath.Join("internal", "scraper", "report", "virfon", "testdata", "fixtures"), "fixture directory")
	dryRun := flag.Bool("dry-run", false, "show what would change without writing")
	flag.Parse()

	var files []string
	for _, ext := range []string{"*.html", "*.csv"} {
		matches, _ := filepath.Glob(filepath.Join(*dir, ext))
		files = append(files, matches...)
	}
	if len(files) == 0 {
		fmt.Printf("No fixtures found in %s\n", *dir)
		os.Exit(1)
	}

	for _, file := range files {
		if err := sanitizeFile(file, *dryRun); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	if *dryRun {
		fmt.Println("Dry run: no files modified.")
	}
}

func sanitizeFile(path string, dryRun bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	sanitized := string(content)
	var changes []string
	for _, p := range sanitizePatterns {
		if n := len(p.Pattern.FindAllStringIndex(sanitized, -1)); n > 0 {
			sanitized = p.Pattern.ReplaceAllString(sanitized, p.Replacement)
			changes = append(changes, fmt.Sprintf("  - %s: %d matched", p.Description, n))
		}
	}

	name := filepath.Base(path)
	if len(changes) == 0 {
		fmt.Printf("%s: nothing to sanitize\n", name)
		return nil
	}
	fmt.Printf("%s:\n", name)
	for _, c := range changes {
		fmt.Println(c)
	}
	if dryRun {
		return nil
	}
	return os.WriteFile(path, []byte(sanitized), 0o644)
}
