package model

import "time"

// RoleAdmin is the only role issued by this service.
const RoleAdmin = "ADMIN"

// User represents an administrator account as stored in the `users`
// table.  Accounts are seeded out of band (cmd/seed-admin); there is no
// self-registration.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – role name (ADMIN).
//  IsActive     – whether the account may log in.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}
