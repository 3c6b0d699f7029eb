package domain

// SubjectType identifies the kind of authenticated principal.
type SubjectType string

const (
	SubjectTypeCustomer SubjectType = "CUSTOMER"
	SubjectTypeEmployee SubjectType = "EMPLOYEE"
)
