package testutil

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const portalSessionCookie = "PHPSESSID"

// PortalConfig describes the data a FakePortal serves.
type PortalConfig struct {
	User     string
	Password string

	// CallsDetail maps a portal date ("08 Oct 2025") to the CSV lines the
	// calls-detail export returns for a single-day filter on it.
	CallsDetail map[string][]string

	// Campaigns maps a menu key ("campaign_in", "campaign_out") to its table
	// pages, each a list of campaign display names.
	Campaigns map[string][][]string

	// FilterDelay postpones the filter's background call after the click.
	FilterDelay time.Duration
	// DownloadChunkDelay spaces the chunks of every CSV response, so files
	// stay in progress for a while.
	DownloadChunkDelay time.Duration
	// EndlessNext renders a "Next" control on every campaign page.
	EndlessNext bool
	// InlineLoginError submits the login form in the background and renders
	// a rejection in place, without navigating.
	InlineLoginError bool
}

// FakePortal is an httptest server imitating the Virfon portal's login,
// frame layout, calls-detail filter and campaign tables.
type FakePortal struct {
	*httptest.Server
	cfg PortalConfig

	mu        sync.Mutex
	logins    int
	downloads []string
	campaigns map[string]portalCampaign
}

type portalCampaign struct {
	ID   int
	Name string
}

func NewFakePortal(t *testing.T, cfg PortalConfig) *FakePortal {
	t.Helper()

	p := &FakePortal{cfg: cfg, campaigns: make(map[string]portalCampaign)}

	id := 1
	for _, menu := range []string{"campaign_in", "campaign_out"} {
		for _, page := range cfg.Campaigns[menu] {
			for _, name := range page {
				p.campaigns[strconv.Itoa(id)] = portalCampaign{ID: id, Name: name}
				id++
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/frame.php", p.handleFrame)
	mux.HandleFunc("/api/calls", p.handleCallsAPI)
	mux.HandleFunc("/", p.handleIndex)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// BaseURL is the portal root with a trailing slash, as deployments
// configure it.
func (p *FakePortal) BaseURL() string { return p.URL + "/" }

// Logins counts successful logins.
func (p *FakePortal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

// Downloads lists the file names served, in order.
func (p *FakePortal) Downloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.downloads...)
}

func (p *FakePortal) authenticated(r *http.Request) bool {
	c, err := r.Cookie(portalSessionCookie)
	return err == nil && c.Value == "fake-session"
}

func (p *FakePortal) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		p.handleLogin(w, r)
		return
	}
	if !p.authenticated(r) {
		renderHTML(w, loginTmpl, map[string]any{"Error": "", "Inline": p.cfg.InlineLoginError})
		return
	}

	q := r.URL.Query()
	menu := q.Get("menu")

	switch {
	case menu == "calls_detail" && q.Get("exportcsv") == "yes":
		p.serveCallsCSV(w, q.Get("date_start"), q.Get("date_end"))
	case q.Get("action") == "csv_data":
		p.serveCampaignCSV(w, q.Get("id_campaign"))
	case menu == "calls_detail" || menu == "campaign_in" || menu == "campaign_out":
		renderHTML(w, shellTmpl, map[string]any{"Menu": menu, "Frame": "/frame.php?menu=" + menu})
	default:
		renderHTML(w, shellTmpl, map[string]any{"Menu": "dashboard", "Frame": ""})
	}
}

func (p *FakePortal) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("input_user") != p.cfg.User || r.PostForm.Get("input_pass") != p.cfg.Password {
		if r.Header.Get("X-Requested-With") == "fetch" {
			http.Error(w, "Incorrect username or password", http.StatusUnauthorized)
			return
		}
		renderHTML(w, loginTmpl, map[string]any{"Error": "Incorrect username or password", "Inline": p.cfg.InlineLoginError})
		return
	}

	p.mu.Lock()
	p.logins++
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: portalSessionCookie, Value: "fake-session", Path: "/"})
	http.Redirect(w, r, "/index.php", http.StatusFound)
}

func (p *FakePortal) handleFrame(w http.ResponseWriter, r *http.Request) {
	if !p.authenticated(r) {
		http.Error(w, "session expired", http.StatusForbidden)
		return
	}
	menu := r.URL.Query().Get("menu")
	if menu == "calls_detail" {
		renderHTML(w, callsDetailTmpl, map[string]any{"FilterDelay": p.cfg.FilterDelay.Milliseconds()})
		return
	}

	pages := p.cfg.Campaigns[menu]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	var rows []portalCampaign
	if page <= len(pages) {
		for _, name := range pages[page-1] {
			rows = append(rows, p.campaignByName(name))
		}
	}

	renderHTML(w, campaignsTmpl, map[string]any{
		"Menu":    menu,
		"Rows":    rows,
		"Page":    page,
		"HasNext": p.cfg.EndlessNext || page < len(pages),
		"Next":    page + 1,
	})
}

func (p *FakePortal) campaignByName(name string) portalCampaign {
	for _, c := range p.campaigns {
		if c.Name == name {
			return c
		}
	}
	return portalCampaign{Name: name}
}

func (p *FakePortal) handleCallsAPI(w http.ResponseWriter, r *http.Request) {
	if !p.authenticated(r) {
		http.Error(w, "session expired", http.StatusForbidden)
		return
	}
	start, end := r.URL.Query().Get("date_start"), r.URL.Query().Get("date_end")
	var rows []string
	if start == end {
		rows = p.cfg.CallsDetail[start]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows})
}

func (p *FakePortal) serveCallsCSV(w http.ResponseWriter, start, end string) {
	var lines []string
	if start == end {
		lines = p.cfg.CallsDetail[start]
	}
	name := fmt.Sprintf("calls_detail_%d.csv", time.Now().UnixNano())
	p.serveCSV(w, name, append([]string{"date,agent,number,duration"}, lines...))
}

func (p *FakePortal) serveCampaignCSV(w http.ResponseWriter, id string) {
	c, ok := p.campaigns[id]
	if !ok {
		http.NotFound(w, nil)
		return
	}
	name := strings.ReplaceAll(c.Name, " ", "_") + ".csv"
	p.serveCSV(w, name, []string{"campaign,phone,status", c.Name + ",999000111,ANSWERED"})
}

func (p *FakePortal) serveCSV(w http.ResponseWriter, name string, lines []string) {
	p.mu.Lock()
	p.downloads = append(p.downloads, name)
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	flusher, _ := w.(http.Flusher)
	for _, line := range lines {
		_, _ = w.Write([]byte(line + "\n"))
		if flusher != nil {
			flusher.Flush()
		}
		if p.cfg.DownloadChunkDelay > 0 {
			time.Sleep(p.cfg.DownloadChunkDelay)
		}
	}
}

func renderHTML(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>Virfon</title></head><body>
<form method="POST" action="/index.php"{{if .Inline}} onsubmit="return inlineLogin(this)"{{end}}>
  {{if .Error}}<div class="form-login-error">{{.Error}}</div>{{end}}
  <input type="text" id="input_user" name="input_user">
  <input type="password" name="input_pass">
  <input type="submit" name="submit_login" value="Login">
</form>
{{if .Inline}}<script>
function inlineLogin(form) {
  fetch('/index.php', {
    method: 'POST',
    headers: {'X-Requested-With': 'fetch'},
    body: new URLSearchParams(new FormData(form)),
  }).then(r => {
    if (r.ok) { location.href = '/index.php'; return; }
    return r.text().then(msg => {
      const div = document.createElement('div');
      div.className = 'form-login-error';
      div.textContent = msg.trim();
      form.prepend(div);
    });
  });
  return false;
}
</script>{{end}}
</body></html>`))

var shellTmpl = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html><head><title>Virfon - {{.Menu}}</title></head><body>
<div id="menu"><a href="/index.php?menu=calls_detail">Calls Detail</a> <a href="/index.php?menu=campaign_in">Campaigns</a></div>
<iframe id="banner" src="about:blank" style="height:20px"></iframe>
{{if .Frame}}<iframe id="content" src="{{.Frame}}" style="width:1200px;height:800px"></iframe>{{end}}
</body></html>`))

var callsDetailTmpl = template.Must(template.New("calls").Parse(`<!DOCTYPE html>
<html><body>
<button id="neo-table-filter-button-arrow" onclick="document.getElementById('filters').style.display='block'">Filter</button>
<div id="filters" style="display:none">
  <input type="text" name="date_start" class="hasDatepicker">
  <input type="text" name="date_end" class="hasDatepicker">
  <input type="button" name="filter" value="Filter" onclick="applyFilter()">
</div>
<table id="results"><tbody></tbody></table>
<div id="downloads" style="display:none">
  <button id="neo-table-button-download-right" onclick="document.getElementById('export-menu').style.display='block'">Download</button>
  <div id="export-menu" style="display:none"><a id="csv-link" href="#"><img id="CSV" alt="CSV" width="16" height="16"></a></div>
</div>
<script>
function applyFilter() {
  const s = document.querySelector('[name=date_start]').value;
  const e = document.querySelector('[name=date_end]').value;
  const qs = 'date_start=' + encodeURIComponent(s) + '&date_end=' + encodeURIComponent(e);
  setTimeout(() => {
    fetch('/api/calls?' + qs).then(r => r.json()).then(data => {
      const body = document.querySelector('#results tbody');
      body.innerHTML = '';
      (data.rows || []).forEach(line => {
        const tr = document.createElement('tr');
        line.split(',').forEach(v => { const td = document.createElement('td'); td.textContent = v; tr.appendChild(td); });
        body.appendChild(tr);
      });
      document.getElementById('csv-link').href = '/index.php?menu=calls_detail&exportcsv=yes&' + qs;
      document.getElementById('downloads').style.display = 'block';
    });
  }, {{.FilterDelay}});
}
</script>
</body></html>`))

var campaignsTmpl = template.Must(template.New("campaigns").Parse(`<!DOCTYPE html>
<html><body>
<table class="neo-table">
  <tr><th>Status</th><th>Name</th><th>Options</th></tr>
  {{range .Rows}}
  <tr>
    <td>Active</td>
    <td><a href="?menu={{$.Menu}}&action=edit_campaign&id_campaign={{.ID}}">{{.Name}}</a></td>
    <td><a href="?menu={{$.Menu}}&action=csv_data&id_campaign={{.ID}}&rawmode=yes">[CSV Data]</a></td>
  </tr>
  {{end}}
</table>
<div class="neo-table-footer">
  {{if gt .Page 1}}<a href="/frame.php?menu={{.Menu}}&page=1">&laquo; First</a>{{end}}
  <span>Page {{.Page}}</span>
  {{if .HasNext}}<a href="/frame.php?menu={{.Menu}}&page={{.Next}}">Next &raquo;</a>{{end}}
</div>
</body></html>`))
