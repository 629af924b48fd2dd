package models

// Agent is the listing agent whose phone number is revealed by an unlock.
type Agent struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Property is read-only reference data with its agent joined in.
type Property struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Address string `json:"address"`
	Agent   Agent  `json:"agent"`
}
