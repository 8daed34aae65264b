package models

import (
	"log"

	"github.com/ristobook/ristobook_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&PosCategory{}, &PosProduct{}, &PosCustomer{},
		&PosReceipt{}, &PosReceiptRow{},
		&PosRoom{}, &PosTable{},
		&PosStockLevel{}, &PosProductSale{},
		&PosConnection{}, &SyncRun{}, &SyncError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
