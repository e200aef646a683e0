package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/report"
)

type siteRow struct {
	Name     string
	URL      string
	Kind     string
	Error    string
	Response string
	Title    string
}

type view struct {
	Subject       string
	When          string
	Report        monitor.CycleReport
	Uptime        string
	Average       string
	Failed        []siteRow
	Working       []siteRow
	StatusPageURL string
	Attachments   []string
}

const textLayout = `{{.Subject}}

Cycle {{.Report.CycleID}} at {{.When}}
Sites checked: {{.Report.TotalSites}}
Online: {{.Report.Successful}}
Offline: {{.Report.Failed}}
Uptime: {{.Uptime}}
Average response time: {{.Average}}
{{if .Failed}}
Failed sites:
{{range .Failed}}  - {{.Name}} ({{.URL}}): [{{.Kind}}] {{.Error}}
{{end}}{{end}}{{if .Working}}
Working sites:
{{range .Working}}  - {{.Name}}: {{.Response}}
{{end}}{{end}}{{if .StatusPageURL}}
Status page: {{.StatusPageURL}}
{{end}}{{if .Attachments}}
Attachments:
{{range .Attachments}}  - {{.}}
{{end}}{{end}}`

const htmlLayout = `<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2>{{.Subject}}</h2>
<p>Cycle <code>{{.Report.CycleID}}</code> at {{.When}}</p>
<table cellpadding="4">
<tr><td>Sites checked</td><td>{{.Report.TotalSites}}</td></tr>
<tr><td>Online</td><td>{{.Report.Successful}}</td></tr>
<tr><td>Offline</td><td>{{.Report.Failed}}</td></tr>
<tr><td>Uptime</td><td>{{.Uptime}}</td></tr>
<tr><td>Average response time</td><td>{{.Average}}</td></tr>
</table>
{{if .Failed}}<h3 style="color:#b00020">Failed sites</h3>
<ul>{{range .Failed}}<li><strong>{{.Name}}</strong> (<a href="{{.URL}}">{{.URL}}</a>): [{{.Kind}}] {{.Error}}</li>{{end}}</ul>{{end}}
{{if .Working}}<h3 style="color:#1b5e20">Working sites</h3>
<ul>{{range .Working}}<li><strong>{{.Name}}</strong>: {{.Response}}{{if .Title}} ({{.Title}}){{end}}</li>{{end}}</ul>{{end}}
{{if .StatusPageURL}}<p>Status page: <a href="{{.StatusPageURL}}">{{.StatusPageURL}}</a></p>{{end}}
{{if .Attachments}}<p>Attachments:</p><ul>{{range .Attachments}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body></html>
`

var (
	textTmpl = template.Must(template.New("text").Parse(textLayout))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout))
)

// Compose renders the subject and both bodies for r. attachments lists the
// file names that will accompany the message.
func Compose(r monitor.CycleReport, statusPageURL string, attachments []string) (subject, html, text string, err error) {
	v := view{
		Subject:       report.Subject(r),
		When:          r.Timestamp.UTC().Format(time.RFC1123),
		Report:        r,
		Uptime:        fmt.Sprintf("%.1f%%", r.UptimePercent),
		Average:       report.AverageLabel(r),
		StatusPageURL: statusPageURL,
		Attachments:   attachments,
	}
	for _, res := range r.Results {
		row := siteRow{Name: res.Site.Name, URL: res.Site.URL}
		if res.Success {
			row.Response = report.ResponseLabel(res)
			if res.Stats != nil {
				row.Title = res.Stats.Title
			}
			v.Working = append(v.Working, row)
			continue
		}
		row.Kind = string(res.ErrorKind)
		row.Error = res.ErrorMessage
		v.Failed = append(v.Failed, row)
	}

	var textBuf, htmlBuf bytes.Buffer
	if err := textTmpl.Execute(&textBuf, v); err != nil {
		return "", "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&htmlBuf, v); err != nil {
		return "", "", "", fmt.Errorf("render html body: %w", err)
	}
	return v.Subject, htmlBuf.String(), textBuf.String(), nil
}

func attachmentLabel(a Attachment) string {
	return fmt.Sprintf("%s (%s)", a.Filename, humanize.Bytes(uint64(len(a.Data))))
}
