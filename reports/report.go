/*
Package reports renders the office's downloadable reports.

STRUCTURE:
  Report data (DailyReport, fleet.Roster) is first flattened into a
  Document: a title plus titled blocks of string rows. Each output format
  only knows how to draw a Document, so every report is available in
  every format.

FORMATS:
  csv   ";" separated, UTF-8 with BOM (opens correctly in Excel)
  excel alias of csv
  xlsx  excelize workbook, one sheet
  pdf   fpdf, A4 portrait

FILE NAMES:
  gunluk_rapor_<YYYY-MM-DD>.<ext>
  arac_<plate>_ogrenci_listesi.<ext>
*/
package reports

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
)

// =============================================================================
// FORMAT
// =============================================================================

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat maps a query value to a Format. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv", "excel":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) Extension() string { return string(f) }

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Block is a titled group of rows. The first row is a header when Header is set.
type Block struct {
	Title  string
	Header bool
	Rows   [][]string
}

type Document struct {
	Title  string
	Blocks []Block
}

// Render writes doc to w in the given format.
func Render(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, doc)
	case FormatXLSX:
		return WriteXLSX(w, doc)
	case FormatPDF:
		return WritePDF(w, doc)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// =============================================================================
// DAILY REPORT
// =============================================================================

// DailyReport holds the payments and expenses of one day.
type DailyReport struct {
	Date     time.Time
	Payments []billing.PaymentView
	Expenses []billing.ExpenseView
	Totals   billing.Profit
}

func NewDailyReport(date time.Time, payments []billing.PaymentView, expenses []billing.ExpenseView) DailyReport {
	return DailyReport{
		Date:     date,
		Payments: payments,
		Expenses: expenses,
		Totals:   billing.NewProfit(billing.SumPayments(payments), billing.SumExpenses(expenses)),
	}
}

func (r DailyReport) FileName(f Format) string {
	return "gunluk_rapor_" + billing.FormatDate(r.Date) + "." + f.Extension()
}

func (r DailyReport) Document() Document {
	payments := [][]string{{"ID", "Öğrenci", "Tarih", "Tutar", "Açıklama"}}
	for _, p := range r.Payments {
		payments = append(payments, []string{
			strconv.FormatInt(int64(p.ID), 10),
			p.StudentName,
			billing.FormatDate(p.PaidOn),
			money(p.Amount),
			p.Description,
		})
	}

	expenses := [][]string{{"ID", "Tarih", "Araç", "Kategori", "Tutar", "Açıklama"}}
	for _, e := range r.Expenses {
		expenses = append(expenses, []string{
			strconv.FormatInt(int64(e.ID), 10),
			billing.FormatDate(e.SpentOn),
			e.VehiclePlate,
			e.Category,
			money(e.Amount),
			e.Description,
		})
	}

	return Document{
		Title: "Günlük Rapor - " + billing.FormatDate(r.Date),
		Blocks: []Block{
			{Title: "Ödemeler", Header: true, Rows: payments},
			{Title: "Giderler", Header: true, Rows: expenses},
			{Title: "Özet", Rows: [][]string{
				{"Toplam Gelir", r.Totals.Income.String()},
				{"Toplam Gider", r.Totals.Expense.String()},
				{"Kâr / Zarar", r.Totals.Profit.String()},
			}},
		},
	}
}

// =============================================================================
// VEHICLE ROSTER REPORT
// =============================================================================

func RosterFileName(r fleet.Roster, f Format) string {
	return "arac_" + safeFileComponent(r.Vehicle.Plate) + "_ogrenci_listesi." + f.Extension()
}

func RosterDocument(r fleet.Roster) Document {
	capacity := ""
	if r.Vehicle.Capacity != nil {
		capacity = strconv.Itoa(*r.Vehicle.Capacity)
	}

	students := [][]string{{"Öğrenci", "Okul", "Veli", "Telefon", "Aylık Ücret"}}
	for _, s := range r.Students {
		students = append(students, []string{s.Name, s.School, s.ParentName, s.Phone, money(s.MonthlyFee)})
	}

	return Document{
		Title: "Araç Öğrenci Listesi - " + r.Vehicle.Plate,
		Blocks: []Block{
			{Rows: [][]string{
				{"Plaka", r.Vehicle.Plate},
				{"Şoför", r.Vehicle.DriverName},
				{"Kapasite", capacity},
				{"Güzergah", r.Vehicle.Route},
			}},
			{Title: "Öğrenci Listesi", Header: true, Rows: students},
			{Rows: [][]string{
				{"Toplam Öğrenci", strconv.Itoa(len(r.Students))},
				{"Toplam Aylık Ücret", r.TotalMonthlyFee().String()},
			}},
		},
	}
}

func money(a billing.Amount) string {
	return a.Value.StringFixed(2)
}

// safeFileComponent keeps plates like "34 ABC 01" usable in a file name.
func safeFileComponent(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
