package models

import (
	"log"

	"github.com/hearthside/fieldops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&ArInvoice{}, &InvoiceOwnership{},
		&JobTicket{},
		&BusinessUnit{},
		&SyncLog{},
		&NotificationLog{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
