package main

import (
	"errors"
	"log"
)

// seedData inserts an initial admin account and a few doctors on first
// run. Existing data is left untouched.
func seedData(users *UserStore, doctors *DoctorStore) error {
	if _, err := users.FindAccountByEmail("admin@clinicbook.local"); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hashed, err := hashPassword("ChangeMe123")
	if err != nil {
		return err
	}

	if _, err := users.CreateUser(&User{
		Email:     "admin@clinicbook.local",
		Password:  hashed,
		FirstName: "Admin",
		LastName:  "User",
		Role:      "admin",
	}); err != nil {
		return err
	}

	seed := []Doctor{
		{Name: "Dr. Sarah Chen", Specialty: "General Practice", Email: "s.chen@clinicbook.local"},
		{Name: "Dr. Miguel Torres", Specialty: "Cardiology", Email: "m.torres@clinicbook.local"},
		{Name: "Dr. Anna Kovacs", Specialty: "Dermatology", Email: "a.kovacs@clinicbook.local"},
	}
	for i := range seed {
		if err := doctors.Create(&seed[i]); err != nil {
			return err
		}
	}

	log.Println("🌱 Seeded admin account and initial doctors (change the default password)")
	return nil
}
