// Package report renders catalog and order spreadsheets for administrators.
package report

import (
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/tealeg/xlsx"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
)

// ContentType is the media type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const dateLayout = "2006-01-02 15:04:05"

// WriteItems writes the inventory as a single-sheet workbook.
func WriteItems(w io.Writer, items []item.Item) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Items")
	if err != nil {
		return errors.Wrap(err, "add sheet")
	}

	header(sheet, "ID", "Name", "Stock", "Price")
	for _, it := range items {
		row := sheet.AddRow()
		row.AddCell().SetString(it.ID)
		row.AddCell().SetString(it.Name)
		row.AddCell().SetInt(it.Stock)
		row.AddCell().SetFloat(it.Price.InexactFloat64())
	}

	if err := file.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// WriteOrders writes one row per order and a second sheet with one row per
// order line.
func WriteOrders(w io.Writer, orders []order.Order) error {
	file := xlsx.NewFile()
	summary, err := file.AddSheet("Orders")
	if err != nil {
		return errors.Wrap(err, "add sheet")
	}
	lines, err := file.AddSheet("Order Items")
	if err != nil {
		return errors.Wrap(err, "add sheet")
	}

	header(summary, "Order ID", "User ID", "Username", "Email", "Date", "Status", "Items", "Total")
	header(lines, "Order ID", "Item ID", "Item", "Quantity", "Price", "Total")

	for _, o := range orders {
		var username, email string
		if o.User != nil {
			username, email = o.User.Username, o.User.Email
		}

		names := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			names = append(names, it.ItemName)

			row := lines.AddRow()
			row.AddCell().SetString(o.ID)
			row.AddCell().SetString(it.ItemID)
			row.AddCell().SetString(it.ItemName)
			row.AddCell().SetInt(it.Quantity)
			row.AddCell().SetFloat(it.Price.InexactFloat64())
			row.AddCell().SetFloat(it.TotalPrice.InexactFloat64())
		}

		row := summary.AddRow()
		row.AddCell().SetString(o.ID)
		row.AddCell().SetString(o.UserID)
		row.AddCell().SetString(username)
		row.AddCell().SetString(email)
		row.AddCell().SetString(o.OrderDate.UTC().Format(dateLayout))
		row.AddCell().SetString(string(o.Status))
		row.AddCell().SetString(strings.Join(names, ", "))
		row.AddCell().SetFloat(o.TotalAmount.InexactFloat64())
	}

	if err := file.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func header(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
}
