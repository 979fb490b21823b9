package dto

// ContactMessageRequest is the contact form payload. Field order is the order
// in which validation failures are reported.
type ContactMessageRequest struct {
	Name    string `json:"name" validate:"min=2" msg:"Name is required"`
	Email   string `json:"email" validate:"email" msg:"Invalid email address"`
	Subject string `json:"subject" validate:"min=5" msg:"Subject is required"`
	Message string `json:"message" validate:"min=10" msg:"Message must be at least 10 characters"`
}

type ContactListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
