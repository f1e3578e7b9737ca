// Package report renders the violations of one run into the HTML body
// and CSV attachment of an alert mail. Both views are built from the
// same ordered violation list; the CSV keeps that flat order, while the
// HTML body may additionally regroup rows into production and
// non-production sections, preserving the order inside each.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"sort"
	"time"

	"oapmon/internal/models"
)

// CSVHeader is the column layout of the attachment
var CSVHeader = []string{"source", "metric", "value", "threshold", "severity", "timestamp"}

// Build assembles the report for one run. Violations are sorted by
// source, then severity descending, then metric and threshold, so the
// same violation set always renders identically regardless of input
// order.
func Build(runID, instance string, violations []models.Violation) *models.Report {
	ordered := make([]models.Violation, len(violations))
	copy(ordered, violations)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sample.Source != ordered[j].Sample.Source {
			return ordered[i].Sample.Source < ordered[j].Sample.Source
		}
		if ordered[i].Severity != ordered[j].Severity {
			return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
		}
		if ordered[i].Metric != ordered[j].Metric {
			return ordered[i].Metric < ordered[j].Metric
		}
		return ordered[i].Threshold < ordered[j].Threshold
	})

	return models.NewReport(runID, instance, ordered)
}

// CSV renders the attachment rows. Parsing the rows back yields the
// same (source, metric, value, threshold, severity) tuples that the
// violations carry.
func CSV(r *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, v := range r.Violations {
		row := []string{
			v.Sample.Source,
			v.Metric,
			models.FormatValue(v.Sample.Value),
			models.FormatValue(v.Threshold),
			string(v.Severity),
			v.Sample.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// htmlStyle matches the table styling used by the alert mails
const htmlStyle = `
body { font-family: sans-serif; font-size: 14px; }
table { border-collapse: collapse; width: 90%; margin: 20px 0; font-size: 12px; }
th, td { border: 1px solid #dddddd; text-align: left; padding: 4px; }
th { background-color: #f2f2f2; font-weight: bold; }
tr:nth-child(even) { background-color: #f9f9f9; }
h2 { color: #D9534F; }
h3 { margin-top: 25px; color: #333; }
`

var htmlTemplate = template.Must(template.New("report").Parse(`<html><head><style>{{.Style}}</style></head>
<body>
{{- if .Report.AllClear}}
<h2 style="color:#5CB85C;">All Clear</h2>
<p>The {{.Report.Instance}} monitoring run at {{.Generated}} found no threshold violations.</p>
{{- else}}
<h2>{{.Title}}</h2>
<p>The following targets reported values breaching their configured thresholds at {{.Generated}}.</p>
{{- range .Sections}}
<h3>{{.Title}}</h3>
<table>
<tr><th>Source</th><th>Metric</th><th>Observed</th><th>Threshold</th><th>Severity</th><th>Message</th></tr>
{{- range .Rows}}
<tr><td>{{.Sample.Source}}</td><td>{{.Metric}}</td><td>{{.ObservedValue}}</td><td>{{.ThresholdText}}</td><td>{{.Severity}}</td><td>{{.Message}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- end}}
<br>
<div>Thanks,</div>
<div>OAPM Monitoring</div>
</body></html>
`))

// row wraps a violation with rendering helpers for the template
type row struct {
	models.Violation
}

func (r row) ObservedValue() string {
	v := r.Violation
	return (&v).ObservedValue()
}

func (r row) ThresholdText() string {
	return fmt.Sprintf("%s %s", r.Op, models.FormatValue(r.Threshold))
}

type section struct {
	Title string
	Rows  []row
}

// HTML renders the mail body. When violations carry environment labels
// the body splits into production and non-production sections, in that
// order; otherwise a single table is rendered.
func HTML(r *models.Report) (string, error) {
	data := struct {
		Style     template.CSS
		Report    *models.Report
		Title     string
		Generated string
		Sections  []section
	}{
		Style:     template.CSS(htmlStyle),
		Report:    r,
		Title:     titleFor(r.Instance),
		Generated: r.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
		Sections:  sectionsFor(r),
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func titleFor(instance string) string {
	switch instance {
	case "sessions":
		return "High Session Usage Alert"
	case "urls":
		return "URL Health Check Failure Alert"
	case "connectors":
		return "Debezium Monitoring Alert"
	default:
		return "Threshold Violation Alert"
	}
}

// sectionsFor splits violations into PRD/NPD tables when environment
// labels are present, preserving the report's ordering inside each
func sectionsFor(r *models.Report) []section {
	hasEnv := false
	for i := range r.Violations {
		if r.Violations[i].Sample.Env() != "" && r.Violations[i].Sample.Env() != "N/A" {
			hasEnv = true
			break
		}
	}

	if !hasEnv {
		rows := make([]row, len(r.Violations))
		for i, v := range r.Violations {
			rows[i] = row{v}
		}
		return []section{{Title: "Threshold Violations", Rows: rows}}
	}

	var prd, npd []row
	for _, v := range r.Violations {
		if v.Sample.IsProduction() {
			prd = append(prd, row{v})
		} else {
			npd = append(npd, row{v})
		}
	}

	var sections []section
	if len(prd) > 0 {
		sections = append(sections, section{Title: "Production Environments (PRD)", Rows: prd})
	}
	if len(npd) > 0 {
		sections = append(sections, section{Title: "Non-Production Environments (NPD)", Rows: npd})
	}
	return sections
}
