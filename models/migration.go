package models

import (
	"log"

	"bitbucket.org/eggnest/eggs_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &RefreshToken{},
		&Room{}, &RoomMember{},
		&Container{},
		&Order{}, &OrderDetail{},
		&OrderNumberSeries{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
