package domain

import "time"

type DonorClass string

const (
	DonorIndividual   DonorClass = "INDIVIDUAL"
	DonorCompany      DonorClass = "COMPANY"
	DonorOrganization DonorClass = "ORGANIZATION"
)

// Donor is a contributing party identified by its tax id.
type Donor struct {
	ID          int64
	TaxID       string
	Name        string
	ContactName string
	Class       DonorClass
	Email       string
	Phone       string
	Active      bool
	CreatedAt   time.Time
}

// Beneficiary is a receiving party identified by its tax id.
type Beneficiary struct {
	ID        int64
	TaxID     string
	Name      string
	Address   string
	Phone     string
	Email     string
	Active    bool
	CreatedAt time.Time
}
