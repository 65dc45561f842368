// Package reporting renders alert statistics and trends to a PDF
// summary document.
package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/go-pdf/fpdf"
)

// Color scheme
var (
	colorPrimary   = [3]int{30, 58, 95}    // dark navy
	colorAccent    = [3]int{46, 204, 113}  // green
	colorWarning   = [3]int{241, 196, 15}  // yellow
	colorDanger    = [3]int{231, 76, 60}   // red
	colorHigh      = [3]int{230, 126, 34}  // orange
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorTableAlt  = [3]int{241, 245, 249}
	colorGridLine  = [3]int{220, 220, 220}
)

// Data is everything one report renders.
type Data struct {
	Tenant      string
	GeneratedAt time.Time
	WindowHours int
	Stats       alerts.Stats
	Trends      []alerts.TrendBucket
	Alerts      []models.Alert
}

// Generator builds alert summary PDFs.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the report and returns the PDF bytes.
func (g *Generator) Generate(data *Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)

	pdf.AddPage()
	g.writeHeader(pdf, data)
	g.writeSummary(pdf, data)
	g.writeSeverityBreakdown(pdf, data)
	if len(data.Trends) > 0 {
		g.writeTrendChart(pdf, data)
	}
	if len(data.Alerts) > 0 {
		g.writeAlertTable(pdf, data)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeHeader(pdf *fpdf.Fpdf, data *Data) {
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 10, "CHAINPULSE", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 7, "RPC Endpoint Alert Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	subtitle := fmt.Sprintf("Tenant: %s    Window: last %dh    Generated: %s",
		data.Tenant, data.WindowHours, data.GeneratedAt.Format("2006-01-02 15:04 MST"))
	pdf.CellFormat(0, 6, subtitle, "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (g *Generator) writeSummary(pdf *fpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Summary")

	cards := []struct {
		label string
		value int
		color [3]int
	}{
		{"Total", data.Stats.Total, colorPrimary},
		{"Active", data.Stats.Active, colorDanger},
		{"Resolved", data.Stats.Resolved, colorAccent},
	}

	cardWidth := 50.0
	startX := pdf.GetX()
	y := pdf.GetY()
	for i, card := range cards {
		x := startX + float64(i)*(cardWidth+5)
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		pdf.Rect(x, y, cardWidth, 20, "F")

		pdf.SetXY(x, y+3)
		pdf.SetFont("Arial", "B", 16)
		pdf.SetTextColor(card.color[0], card.color[1], card.color[2])
		pdf.CellFormat(cardWidth, 8, fmt.Sprintf("%d", card.value), "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+12)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(cardWidth, 5, card.label, "", 0, "C", false, 0, "")
	}
	pdf.SetY(y + 26)
}

func (g *Generator) writeSeverityBreakdown(pdf *fpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "By Severity")

	rows := []struct {
		severity models.AlertSeverity
		color    [3]int
	}{
		{models.SeverityCritical, colorDanger},
		{models.SeverityHigh, colorHigh},
		{models.SeverityMedium, colorWarning},
		{models.SeverityLow, colorAccent},
	}

	maxCount := 0
	for _, row := range rows {
		if c := data.Stats.BySeverity[row.severity]; c > maxCount {
			maxCount = c
		}
	}

	barMax := 100.0
	for _, row := range rows {
		count := data.Stats.BySeverity[row.severity]

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(25, 6, string(row.severity), "", 0, "L", false, 0, "")

		width := 0.0
		if maxCount > 0 {
			width = barMax * float64(count) / float64(maxCount)
		}
		x, y := pdf.GetX(), pdf.GetY()
		if width > 0 {
			pdf.SetFillColor(row.color[0], row.color[1], row.color[2])
			pdf.Rect(x, y+1, width, 4, "F")
		}
		pdf.SetX(x + barMax + 4)
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", count), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (g *Generator) writeTrendChart(pdf *fpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Alert Trend")

	chartWidth := 170.0
	chartHeight := 40.0
	originX := pdf.GetX()
	originY := pdf.GetY() + chartHeight

	maxCount := 1
	for _, bucket := range data.Trends {
		if bucket.Count > maxCount {
			maxCount = bucket.Count
		}
	}

	// Grid lines
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	for i := 0; i <= 4; i++ {
		y := originY - chartHeight*float64(i)/4
		pdf.Line(originX, y, originX+chartWidth, y)
	}

	barGap := 1.5
	barWidth := chartWidth/float64(len(data.Trends)) - barGap
	if barWidth < 0.5 {
		barWidth = 0.5
	}
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	for i, bucket := range data.Trends {
		height := chartHeight * float64(bucket.Count) / float64(maxCount)
		x := originX + float64(i)*(barWidth+barGap)
		if height > 0 {
			pdf.Rect(x, originY-height, barWidth, height, "F")
		}
	}

	// Axis labels: first and last bucket start times.
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.SetXY(originX, originY+1)
	pdf.CellFormat(chartWidth/2, 4, data.Trends[0].BucketStart.Format("Jan 2 15:04"), "", 0, "L", false, 0, "")
	pdf.CellFormat(chartWidth/2, 4, data.Trends[len(data.Trends)-1].BucketStart.Format("Jan 2 15:04"), "", 1, "R", false, 0, "")
	pdf.Ln(6)
}

func (g *Generator) writeAlertTable(pdf *fpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Recent Alerts")

	headers := []string{"Time", "Endpoint", "Type", "Severity", "Status"}
	widths := []float64{32, 45, 30, 25, 38}

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetTextColor(255, 255, 255)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	limit := len(data.Alerts)
	if limit > 40 {
		limit = 40
	}
	pdf.SetFont("Arial", "", 8)
	for i, alert := range data.Alerts[:limit] {
		if i%2 == 1 {
			pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		} else {
			pdf.SetFillColor(255, 255, 255)
		}

		status := "active"
		statusColor := colorDanger
		if alert.Resolved {
			status = "resolved"
			if alert.ResolvedBy != "" {
				status = "resolved by " + alert.ResolvedBy
			}
			statusColor = colorAccent
		}

		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(widths[0], 6, alert.Timestamp.Format("Jan 2 15:04:05"), "", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 6, truncate(alert.EndpointID, 28), "", 0, "L", true, 0, "")
		pdf.CellFormat(widths[2], 6, string(alert.Type), "", 0, "L", true, 0, "")
		pdf.CellFormat(widths[3], 6, string(alert.Severity), "", 0, "L", true, 0, "")
		pdf.SetTextColor(statusColor[0], statusColor[1], statusColor[2])
		pdf.CellFormat(widths[4], 6, truncate(status, 24), "", 1, "L", true, 0, "")
	}

	if len(data.Alerts) > limit {
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 6, fmt.Sprintf("... and %d more", len(data.Alerts)-limit), "", 1, "L", false, 0, "")
	}
}

func (g *Generator) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
