package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the name of the single worksheet in an export
const SheetName = "Orders"

// ContentType is the MIME type of an xlsx workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrNoOrders = errors.New("no orders to export")

// Columns is the header row of the export
var Columns = []string{
	"Order ID",
	"Customer Name",
	"Product Name",
	"Quantity",
	"Total Amount (₹)",
	"Phone Number",
	"Address",
	"Order Date",
	"Order Type",
	"Status",
	"User ID",
}

// Filename returns the download name for an export taken at now
func Filename(now time.Time) string {
	return fmt.Sprintf("orders_%s.xlsx", now.UTC().Format("2006-01-02"))
}

// Write renders orders as an xlsx workbook into w
func Write(ctx context.Context, w io.Writer, orders []models.OrderView) error {
	_, span := util.StartSpan(ctx, "export.Write")
	defer span.End()

	if len(orders) == 0 {
		return ErrNoOrders
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := buildSheet(f, orders); err != nil {
		util.FailSpan(span, err)
		return fmt.Errorf("failed to build workbook: %w", err)
	}
	if err := f.Write(w); err != nil {
		util.FailSpan(span, err)
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	util.ExportsTotal.Inc()
	util.GetLogger().Info("Orders exported", zap.Int("rows", len(orders)))
	return nil
}

func buildSheet(f *excelize.File, orders []models.OrderView) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}

	for i := range orders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := record(&orders[i])
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	return f.SetColWidth(SheetName, "A", last, 20)
}

func record(o *models.OrderView) []interface{} {
	return []interface{}{
		o.ID,
		o.UserName,
		o.ProductName,
		o.Quantity,
		o.TotalAmount,
		o.PhoneNo,
		o.UserAddress,
		o.BookingDate,
		o.OrderType(),
		string(o.Status),
		o.UserID,
	}
}
