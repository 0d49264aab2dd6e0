package reports

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type agingRow struct {
	AgingBucket string          `json:"aging_bucket"`
	TradeType   string          `json:"trade_type"`
	Count       int64           `json:"count"`
	Balance     decimal.Decimal `json:"balance"`
}

// ArAgingReportHandler aggregates the open book by aging bucket and trade.
func ArAgingReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var rows []agingRow
		if err := db.Model(&models.ArInvoice{}).
			Select("aging_bucket, trade_type, count(*) as count, sum(balance) as balance").
			Where("status = ?", models.InvoiceStatusOpen).
			Group("aging_bucket, trade_type").
			Order("aging_bucket, trade_type").
			Scan(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		totals := map[string]decimal.Decimal{}
		for _, row := range rows {
			totals[row.AgingBucket] = totals[row.AgingBucket].Add(row.Balance)
		}

		c.JSON(http.StatusOK, gin.H{"rows": rows, "bucket_totals": totals})
	}
}

// ArAgingExportHandler streams the open book as an xlsx download.
func ArAgingExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var invoices []models.ArInvoice
		if err := db.Where("status = ?", models.InvoiceStatusOpen).
			Order("aging_bucket, balance desc").
			Find(&invoices).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()

		headers := []string{"Invoice #", "Customer", "Business Unit", "Trade", "Segment", "Aging", "Invoice Date", "Total", "Balance", "Owner", "Workflow"}
		for i, header := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue("Sheet1", cell, header)
		}

		for i, inv := range invoices {
			row := i + 2
			invoiceDate := ""
			if inv.InvoiceDate != nil {
				invoiceDate = inv.InvoiceDate.Format("2006-01-02")
			}
			owner := ""
			if inv.OwnerId != nil {
				owner = fmt.Sprint(*inv.OwnerId)
			}
			total, _ := inv.Total.Float64()
			balance, _ := inv.Balance.Float64()

			values := []interface{}{
				inv.InvoiceNumber,
				inv.CustomerName,
				inv.BusinessUnitName,
				inv.TradeType,
				inv.CustomerSegment,
				string(inv.AgingBucket),
				invoiceDate,
				total,
				balance,
				owner,
				string(inv.WorkflowStatus),
			}
			for col, value := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue("Sheet1", cell, value)
			}
		}

		c.Writer.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Writer.Header().Set("Content-Disposition", "attachment; filename=ar_aging.xlsx")
		if err := f.Write(c.Writer); err != nil {
			config.GetLogger().Errorf("aging export write failed: %v", err)
		}
	}
}
