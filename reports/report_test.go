package reports_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/fleet"
	"github.com/warp/shuttle-admin/reports"
)

func amount(s string) billing.Amount {
	return billing.NewAmountFromDecimal(billing.MustParseDecimal(s))
}

func sampleDaily() reports.DailyReport {
	day := time.Date(2024, time.October, 14, 0, 0, 0, 0, time.UTC)
	payments := []billing.PaymentView{
		{Payment: billing.Payment{ID: 1, PaidOn: day, Amount: amount("1000"), Description: "Ekim"}, StudentName: "Ali"},
		{Payment: billing.Payment{ID: 2, PaidOn: day, Amount: amount("250.5")}, StudentName: "Ayşe"},
	}
	expenses := []billing.ExpenseView{
		{Expense: billing.Expense{ID: 9, SpentOn: day, Category: "Yakıt", Amount: amount("400")}, VehiclePlate: "34 ABC 01"},
	}
	return reports.NewDailyReport(day, payments, expenses)
}

func sampleRoster() fleet.Roster {
	capacity := 14
	return fleet.Roster{
		Vehicle: fleet.Vehicle{ID: 3, Plate: "34 ABC 01", DriverName: "Hasan", Capacity: &capacity, Route: "Merkez"},
		Students: []fleet.RosterEntry{
			{StudentID: 1, Name: "Ali", School: "Kolej", MonthlyFee: amount("1000")},
			{StudentID: 2, Name: "Şule", School: "Kolej", MonthlyFee: amount("1200.5")},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]reports.Format{
		"": reports.FormatCSV, "csv": reports.FormatCSV, "excel": reports.FormatCSV,
		"XLSX": reports.FormatXLSX, "pdf": reports.FormatPDF,
	} {
		got, err := reports.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := reports.ParseFormat("doc")
	assert.ErrorIs(t, err, reports.ErrUnknownFormat)
}

func TestDailyReport_Totals(t *testing.T) {
	r := sampleDaily()
	assert.Equal(t, "1250.50 TRY", r.Totals.Income.String())
	assert.Equal(t, "400.00 TRY", r.Totals.Expense.String())
	assert.Equal(t, "850.50 TRY", r.Totals.Profit.String())
	assert.Equal(t, "gunluk_rapor_2024-10-14.pdf", r.FileName(reports.FormatPDF))
}

func TestWriteCSV_DailyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reports.WriteCSV(&buf, sampleDaily().Document()))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}), "UTF-8 BOM")

	r := csv.NewReader(bytes.NewReader(raw[3:]))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"Günlük Rapor - 2024-10-14"}, records[0])
	assert.Contains(t, records, []string{"2", "Ayşe", "2024-10-14", "250.50", ""})
	assert.Contains(t, records, []string{"9", "2024-10-14", "34 ABC 01", "Yakıt", "400.00", ""})
	assert.Contains(t, records, []string{"Kâr / Zarar", "850.50 TRY"})
}

func TestWriteXLSX_RosterReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reports.WriteXLSX(&buf, reports.RosterDocument(sampleRoster())))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reports.SheetName)
	require.NoError(t, err)
	assert.Equal(t, []string{"Araç Öğrenci Listesi - 34 ABC 01"}, rows[0])
	assert.Contains(t, rows, []string{"Kapasite", "14"})
	assert.Contains(t, rows, []string{"Şule", "Kolej", "", "", "1200.50"})
	assert.Contains(t, rows, []string{"Toplam Aylık Ücret", "2200.50 TRY"})
}

func TestWritePDF_ProducesDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reports.WritePDF(&buf, sampleDaily().Document()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, reports.Render(&buf, reports.FormatPDF, reports.RosterDocument(sampleRoster())))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRosterFileName_SanitizesPlate(t *testing.T) {
	assert.Equal(t, "arac_34_ABC_01_ogrenci_listesi.xlsx", reports.RosterFileName(sampleRoster(), reports.FormatXLSX))
}
