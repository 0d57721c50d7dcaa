package models

import "time"

// ChildSummary is the reference to a registered child kept on the parent profile.
type ChildSummary struct {
	Name       string `json:"name"`
	FiscalCode string `json:"fiscal_code"`
	Email      string `json:"email"`
}

// ParentProfile is the users document written for a parent account.
type ParentProfile struct {
	ID         string
	FirstName  string
	LastName   string
	FiscalCode string
	Phone      string
	Email      string
	Address    string
	City       string
	PostalCode string
	CreatedAt  time.Time
}

// ToDocument flattens the profile into document store fields. The children
// list starts empty and is patched once every child record has been written.
func (p ParentProfile) ToDocument() map[string]interface{} {
	return map[string]interface{}{
		"role":       string(RoleParent),
		"firstName":  p.FirstName,
		"lastName":   p.LastName,
		"fiscalCode": p.FiscalCode,
		"phone":      p.Phone,
		"email":      p.Email,
		"address":    p.Address,
		"city":       p.City,
		"postalCode": p.PostalCode,
		"children":   []interface{}{},
		"createdAt":  p.CreatedAt,
	}
}

// ChildrenPatch builds the update applied to the parent profile after submission.
func ChildrenPatch(children []ChildSummary) map[string]interface{} {
	list := make([]interface{}, 0, len(children))
	for _, c := range children {
		list = append(list, map[string]interface{}{
			"name":       c.Name,
			"fiscalCode": c.FiscalCode,
			"email":      c.Email,
		})
	}
	return map[string]interface{}{"children": list}
}
