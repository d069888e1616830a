package domain

import "time"

type ContactStatus string

const (
	ContactSubscribed   ContactStatus = "SUBSCRIBED"
	ContactUnsubscribed ContactStatus = "UNSUBSCRIBED"
	ContactBounced      ContactStatus = "BOUNCED"
	ContactComplained   ContactStatus = "COMPLAINED"
)

type Contact struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Email     string        `json:"email"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Status    ContactStatus `json:"status"`
	TagIDs    []string      `json:"tag_ids"`
	CreatedAt time.Time     `json:"created_at"`
}

type Tag struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

type Template struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	HTML    string `json:"html"`
}

// Owner is the account a campaign is sent on behalf of.
type Owner struct {
	ID             string `json:"id"`
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
}
