package model

import "time"

// Customer represents a person who books charters.  Customers are looked
// up by email and reused across reservations; the most recent booking
// overwrites name and phone while optional fields keep their previous
// value when not supplied again.
//
// Fields:
//  ID            – primary key identifier.
//  Name          – full name as entered on the booking form.
//  Email         – unique, lower-cased email address.
//  Phone         – contact number.
//  Address       – postal address (nullable).
//  IDDocumentRef – reference to an uploaded ID image (nullable).
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Customer struct {
    ID            uint64    `json:"id"`                        // customers.id
    Name          string    `json:"name"`                      // customers.name
    Email         string    `json:"email"`                     // customers.email
    Phone         string    `json:"phone"`                     // customers.phone
    Address       *string   `json:"address,omitempty"`         // customers.address (nullable)
    IDDocumentRef *string   `json:"id_document_ref,omitempty"` // customers.id_document_ref (nullable)
    CreatedAt     time.Time `json:"created_at"`                // customers.created_at
    UpdatedAt     time.Time `json:"updated_at"`                // customers.updated_at
}
